// SPDX-License-Identifier: MPL-2.0

package invocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posh/internal/annotation"
)

func descriptor(t *testing.T, line string) *annotation.CommandDescriptor {
	t.Helper()
	d, err := annotation.ParseLine(line, 1)
	require.NoError(t, err)
	return d
}

func TestMatch_Grep(t *testing.T) {
	d := descriptor(t, `grep[filters_input]: FLAGS:[(short:i,long:ignore-case)] PARAMS:[(type:str,size:1),(type:input_file,size:1)]`)
	toks, matched, err := Match([]*annotation.CommandDescriptor{d}, []string{"-i", "foo", "x.txt"})
	require.NoError(t, err)
	assert.Same(t, d, matched)
	require.Len(t, toks, 3)
	assert.Equal(t, FlagKind, toks[0].Kind)
	assert.Equal(t, "ignore-case", toks[0].Name)
	assert.Equal(t, StrKind, toks[1].Kind)
	assert.Equal(t, InputFileKind, toks[2].Kind)
	assert.Equal(t, "x.txt", toks[2].Raw)
}

func TestMatch_CatListSplit(t *testing.T) {
	d := descriptor(t, `cat[splittable_across_input]: PARAMS:[(type:input_file,size:list(list_separator:( )),splittable)]`)
	toks, _, err := Match([]*annotation.CommandDescriptor{d}, []string{"a.txt", "b.txt", "c.txt"})
	require.NoError(t, err)
	require.Len(t, toks, 3)
	for _, tok := range toks {
		assert.Equal(t, InputFileKind, tok.Kind)
		assert.True(t, tok.Splittable)
	}
}

func TestMatch_ListSpaceStopsAtFlag(t *testing.T) {
	d := descriptor(t, `foo: FLAGS:[(long:verbose)] PARAMS:[(type:input_file,size:list(list_separator:( )))]`)
	toks, _, err := Match([]*annotation.CommandDescriptor{d}, []string{"a.txt", "b.txt", "--verbose"})
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, InputFileKind, toks[0].Kind)
	assert.Equal(t, InputFileKind, toks[1].Kind)
	assert.Equal(t, FlagKind, toks[2].Kind)
}

func TestMatch_NonSpaceSeparatorSplit(t *testing.T) {
	d := descriptor(t, `cut: OPTPARAMS:[(short:f,long:fields,type:str,size:list(list_separator:(,)))]`)
	toks, _, err := Match([]*annotation.CommandDescriptor{d}, []string{"-f", "1,2,3"})
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, OptParamKeyKind, toks[0].Kind)
	assert.Equal(t, ListSepKind, toks[1].Kind)
	assert.Equal(t, []string{"1", "2", "3"}, toks[1].Values)
}

func TestMatch_OverloadFallthrough(t *testing.T) {
	d1 := descriptor(t, `git status: PARAMS:[(type:str,size:1)]`)
	d2 := descriptor(t, `git status: FLAGS:[(short:s,long:short)] PARAMS:[]`)
	toks, matched, err := Match([]*annotation.CommandDescriptor{d1, d2}, []string{"-s"})
	require.NoError(t, err)
	assert.Same(t, d2, matched)
	require.Len(t, toks, 1)
	assert.Equal(t, FlagKind, toks[0].Kind)
}

func TestMatch_NoMatch(t *testing.T) {
	d := descriptor(t, `frobnicate: PARAMS:[(type:str,size:1)]`)
	_, _, err := Match([]*annotation.CommandDescriptor{d}, []string{"--x", "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_EmptyOverloadSet(t *testing.T) {
	_, _, err := Match(nil, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestMatch_Deterministic(t *testing.T) {
	d := descriptor(t, `grep: PARAMS:[(type:str,size:1),(type:input_file,size:1)]`)
	toks1, _, err1 := Match([]*annotation.CommandDescriptor{d}, []string{"foo", "x.txt"})
	toks2, _, err2 := Match([]*annotation.CommandDescriptor{d}, []string{"foo", "x.txt"})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, toks1, toks2)
}
