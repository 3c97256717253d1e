package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontMatterBasic(t *testing.T) {
	fm, body, err := ParseFrontMatter(`---
title: The Title
url: http://example.com/a
author: A. Writer
tags:
  - systems
  - notes
---
Body text here.`)
	require.NoError(t, err)
	assert.Equal(t, "The Title", fm.Title)
	assert.Equal(t, "http://example.com/a", fm.URL)
	assert.Equal(t, "A. Writer", fm.Author)
	assert.Equal(t, []string{"systems", "notes"}, fm.Tags)
	assert.Equal(t, "Body text here.", body)
}

func TestParseFrontMatterDateAliasPriority(t *testing.T) {
	// Both aliases present; "date" outranks "publishedDate".
	fm, _, err := ParseFrontMatter(`---
title: T
date: "2024-01-02"
publishedDate: "2023-12-31"
---
body`)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", fm.PublishedDate)
}

func TestParseFrontMatterDateObjectNormalized(t *testing.T) {
	// An unquoted YAML timestamp decodes as time.Time and must come out
	// as an ISO-8601 string.
	fm, _, err := ParseFrontMatter(`---
title: T
date: 2024-01-02T15:04:05Z
---
body`)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02T15:04:05Z", fm.PublishedDate)
}

func TestParseFrontMatterFallbackAliases(t *testing.T) {
	fm, _, err := ParseFrontMatter(`---
title: T
publishedAt: "2022-06-01"
---
body`)
	require.NoError(t, err)
	assert.Equal(t, "2022-06-01", fm.PublishedDate)
}

func TestParseFrontMatterNoHeader(t *testing.T) {
	fm, body, err := ParseFrontMatter("Just a plain document.")
	require.NoError(t, err)
	assert.Empty(t, fm.Title)
	assert.Equal(t, "Just a plain document.", body)
}

func TestParseFrontMatterMalformed(t *testing.T) {
	_, _, err := ParseFrontMatter("---\ntitle: [unclosed\n---\nbody")
	assert.Error(t, err)
}

func TestParseFrontMatterCommaSeparatedTags(t *testing.T) {
	fm, _, err := ParseFrontMatter("---\ntitle: T\ntags: a, b, c\n---\nbody")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, fm.Tags)
}
