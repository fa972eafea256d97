package license

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newClassifier(t *testing.T, enabled bool, patterns ...string) *Classifier {
	t.Helper()
	c, err := New(Config{Enabled: enabled, BlockedPatterns: patterns}, nil)
	require.NoError(t, err)
	return c
}

func nuspecWith(metadata string) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata><id>Sample</id><version>1.0.0</version>` + metadata + `</metadata>
</package>`
}

func TestDisabledNeverRestricts(t *testing.T) {
	c := newClassifier(t, false, "AGPL", ".*")

	assert.False(t, c.IsRestrictedExpression("AGPL-3.0-only"))
	assert.False(t, c.IsRestrictedURL(mustURL(t, "https://licenses.nuget.org/AGPL-3.0-only")))
	assert.False(t, c.IsRestricted(mustURL(t, "https://example.org/agpl"), "AGPL-3.0-only"))
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(nuspecWith(`<license type="expression">AGPL-3.0-only</license>`))))
	assert.False(t, c.Enabled())
	assert.False(t, c.Active())
}

func TestEmptyPatternListNeverRestricts(t *testing.T) {
	c := newClassifier(t, true)

	assert.False(t, c.IsRestrictedExpression("AGPL-3.0-only"))
	assert.False(t, c.IsRestrictedURL(mustURL(t, "https://example.org/agpl")))
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(nuspecWith(`<license type="expression">AGPL-3.0-only</license>`))))
	assert.Equal(t, 0, c.PatternCount())
	assert.False(t, c.Active())
}

func TestMatchingIsCaseInsensitive(t *testing.T) {
	testCases := []struct {
		pattern string
		subject string
	}{
		{"AGPL", "agpl-3.0-or-later"},
		{"agpl", "AGPL-3.0-OR-LATER"},
		{"AgPl", "aGpL-3.0"},
		{`GPL-3\.0`, "gpl-3.0-only"},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern+"/"+tc.subject, func(t *testing.T) {
			c := newClassifier(t, true, tc.pattern)
			assert.True(t, c.IsRestrictedExpression(tc.subject))
			assert.True(t, c.IsRestrictedExpression(tc.subject), "classification must be deterministic")
		})
	}
}

func TestURLMatchesAbsoluteString(t *testing.T) {
	c := newClassifier(t, true, `^https://licenses\.example\.org/restricted`)

	assert.True(t, c.IsRestrictedURL(mustURL(t, "HTTPS://licenses.example.org/RESTRICTED/1.0")))
	assert.False(t, c.IsRestrictedURL(mustURL(t, "https://other.example.org/restricted")))
	assert.False(t, c.IsRestrictedURL(nil))
}

func TestIsRestrictedIsLogicalOr(t *testing.T) {
	c := newClassifier(t, true, "AGPL")

	assert.True(t, c.IsRestricted(mustURL(t, "https://example.org/agpl.txt"), "MIT"))
	assert.True(t, c.IsRestricted(nil, "AGPL-3.0-only"))
	assert.False(t, c.IsRestricted(mustURL(t, "https://example.org/mit.txt"), "MIT"))
	assert.False(t, c.IsRestricted(nil, ""))
}

func TestEmptyExpressionShortCircuits(t *testing.T) {
	c := newClassifier(t, true, ".*")

	assert.False(t, c.IsRestrictedExpression(""))
	assert.False(t, c.IsRestrictedExpression("   "))
	assert.True(t, c.IsRestrictedExpression("MIT"))
}

func TestInvalidPatternFailsConstruction(t *testing.T) {
	_, err := New(Config{Enabled: true, BlockedPatterns: []string{"AGPL", "(unclosed"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(unclosed")
}

func TestPatternCountMatchesConfig(t *testing.T) {
	c := newClassifier(t, true, "AGPL", "SSPL", "BUSL")
	assert.Equal(t, 3, c.PatternCount())
	assert.True(t, c.Active())
}

func TestNilClassifierIsInactive(t *testing.T) {
	var c *Classifier
	assert.False(t, c.Active())
	assert.False(t, c.IsRestrictedExpression("AGPL-3.0-only"))
}

func TestNuspecExpressionTakesPrecedence(t *testing.T) {
	c := newClassifier(t, true, "restricted")

	doc := nuspecWith(`<license type="expression">MIT</license><licenseUrl>https://example.org/restricted</licenseUrl>`)
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)))

	doc = nuspecWith(`<license type="expression">Restricted-1.0</license><licenseUrl>https://example.org/mit</licenseUrl>`)
	assert.True(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)))
}

func TestNuspecEmptyExpressionDoesNotFallBack(t *testing.T) {
	c := newClassifier(t, true, "restricted")

	doc := nuspecWith(`<license type="expression"></license><licenseUrl>https://example.org/restricted</licenseUrl>`)
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)))
}

func TestNuspecFallsBackToLicenseURL(t *testing.T) {
	c := newClassifier(t, true, "restricted")

	doc := nuspecWith(`<licenseUrl>https://example.org/restricted.txt</licenseUrl>`)
	assert.True(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)))

	doc = nuspecWith(`<license type="file">LICENSE-restricted.txt</license><licenseUrl>https://example.org/restricted.txt</licenseUrl>`)
	assert.True(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)), "file licenses fall back to the url")

	doc = nuspecWith(`<licenseUrl>restricted.txt</licenseUrl>`)
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(doc)), "relative urls are not parsable license urls")
}

func TestNuspecWithoutLicenseIsNotRestricted(t *testing.T) {
	c := newClassifier(t, true, ".*")
	assert.False(t, c.IsRestrictedFromNuspec(strings.NewReader(nuspecWith(""))))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestMalformedNuspecFailsOpen(t *testing.T) {
	logBuf := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logBuf)

	c, err := New(Config{Enabled: true, BlockedPatterns: []string{".*"}}, logger)
	require.NoError(t, err)

	inputs := []io.Reader{
		strings.NewReader(""),
		strings.NewReader("<package><metadata><license type=\"expression\">AGPL"),
		strings.NewReader("{\"not\": \"xml\"}"),
		failingReader{},
		nil,
	}
	for i, r := range inputs {
		assert.False(t, c.IsRestrictedFromNuspec(r), "input #%d", i)
	}
	assert.Contains(t, logBuf.String(), "nuspec_unreadable")
}

func TestClassifierIsSafeForConcurrentUse(t *testing.T) {
	c := newClassifier(t, true, "AGPL", "SSPL")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			expr := fmt.Sprintf("MIT OR AGPL-%d.0", i)
			assert.True(t, c.IsRestrictedExpression(expr))
			assert.False(t, c.IsRestrictedExpression("Apache-2.0"))
		}(i)
	}
	wg.Wait()
}
