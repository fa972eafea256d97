package index

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/nuget-hub/internal/nuget"
)

// runIndexSuite 对任意 Index 实现执行同一组行为测试。
func runIndexSuite(t *testing.T, newIndex func(t *testing.T) Index) {
	t.Run("FindRecordIgnoresCase", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		added, err := idx.Add(ctx, samplePackage("Newtonsoft.Json", "13.0.1", true))
		require.NoError(t, err)
		require.True(t, added)

		pkg, err := idx.FindRecord(ctx, "newtonsoft.JSON", nuget.MustParseVersion("13.0.1"), false)
		require.NoError(t, err)
		require.NotNil(t, pkg)
		assert.Equal(t, "Newtonsoft.Json", pkg.ID)
		assert.Equal(t, "13.0.1", pkg.Version.NormalizedString())
		assert.Equal(t, []string{"James", "Jane"}, pkg.Authors)
		assert.Equal(t, "MIT", pkg.LicenseExpression)
		require.NotNil(t, pkg.LicenseURL)
		assert.Equal(t, "https://licenses.example/mit", pkg.LicenseURL.String())
		assert.True(t, pkg.HasReadme)
		assert.Equal(t, "README.md", pkg.ReadmePath)
	})

	t.Run("FindRecordMissing", func(t *testing.T) {
		idx := newIndex(t)
		pkg, err := idx.FindRecord(context.Background(), "absent", nuget.MustParseVersion("1.0.0"), true)
		require.NoError(t, err)
		assert.Nil(t, pkg)
	})

	t.Run("UnlistedHiddenUnlessIncluded", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		_, err := idx.Add(ctx, samplePackage("Hidden", "1.0.0", false))
		require.NoError(t, err)

		pkg, err := idx.FindRecord(ctx, "hidden", nuget.MustParseVersion("1.0.0"), false)
		require.NoError(t, err)
		assert.Nil(t, pkg)

		pkg, err = idx.FindRecord(ctx, "hidden", nuget.MustParseVersion("1.0.0"), true)
		require.NoError(t, err)
		require.NotNil(t, pkg)
		assert.False(t, pkg.Listed)

		exists, err := idx.Exists(ctx, "HIDDEN", nuget.MustParseVersion("1.0.0"))
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("AddDoesNotOverwrite", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		first := samplePackage("Dup", "1.0.0", true)
		first.Description = "first"
		second := samplePackage("dup", "1.0.0.0", true)
		second.Description = "second"

		added, err := idx.Add(ctx, first)
		require.NoError(t, err)
		assert.True(t, added)
		added, err = idx.Add(ctx, second)
		require.NoError(t, err)
		assert.False(t, added)

		pkg, err := idx.FindRecord(ctx, "dup", nuget.MustParseVersion("1.0.0"), true)
		require.NoError(t, err)
		require.NotNil(t, pkg)
		assert.Equal(t, "first", pkg.Description)
	})

	t.Run("AddRejectsInvalidRecord", func(t *testing.T) {
		idx := newIndex(t)
		_, err := idx.Add(context.Background(), &nuget.Package{ID: " "})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("RecordDownloadCounts", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		v := nuget.MustParseVersion("2.0.0")
		_, err := idx.Add(ctx, samplePackage("Counted", "2.0.0", true))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			ok, err := idx.RecordDownload(ctx, "COUNTED", v)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		pkg, err := idx.FindRecord(ctx, "counted", v, true)
		require.NoError(t, err)
		require.NotNil(t, pkg)
		assert.EqualValues(t, 3, pkg.Downloads)

		ok, err := idx.RecordDownload(ctx, "missing", v)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RecordDownloadConcurrent", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		v := nuget.MustParseVersion("1.0.0")
		_, err := idx.Add(ctx, samplePackage("Busy", "1.0.0", true))
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = idx.RecordDownload(ctx, "busy", v)
			}()
		}
		wg.Wait()

		pkg, err := idx.FindRecord(ctx, "busy", v, true)
		require.NoError(t, err)
		assert.EqualValues(t, workers, pkg.Downloads)
	})

	t.Run("FindVersionsInInsertionOrder", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		for _, raw := range []string{"2.0.0", "1.0.0", "3.0.0-beta"} {
			_, err := idx.Add(ctx, samplePackage("Ordered", raw, raw != "1.0.0"))
			require.NoError(t, err)
		}
		_, err := idx.Add(ctx, samplePackage("Other", "9.9.9", true))
		require.NoError(t, err)

		all, err := idx.FindVersions(ctx, "ORDERED", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"2.0.0", "1.0.0", "3.0.0-beta"}, versionStrings(all))

		listed, err := idx.FindVersions(ctx, "ordered", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"2.0.0", "3.0.0-beta"}, versionStrings(listed))

		none, err := idx.FindVersions(ctx, "nothing", true)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func samplePackage(id, version string, listed bool) *nuget.Package {
	u, _ := url.Parse("https://licenses.example/mit")
	return &nuget.Package{
		ID:                id,
		Version:           nuget.MustParseVersion(version),
		Authors:           []string{"James", "Jane"},
		Description:       "sample",
		Listed:            listed,
		LicenseURL:        u,
		LicenseExpression: "MIT",
		HasReadme:         true,
		ReadmePath:        "README.md",
		Published:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func versionStrings(versions []nuget.Version) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.NormalizedString())
	}
	return out
}
