// SPDX-License-Identifier: MPL-2.0

package annotation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_Grep(t *testing.T) {
	line := `grep[filters_input,splittable_across_input]: FLAGS:[(short:i,long:ignore-case)] PARAMS:[(type:str,size:1),(type:input_file,size:1)]`
	d, err := ParseLine(line, 1)
	require.NoError(t, err)

	assert.Equal(t, "grep", d.CommandName)
	assert.True(t, d.HasFlag(FiltersInput))
	assert.True(t, d.HasFlag(SplittableAcrossInput))
	assert.False(t, d.HasFlag(NeedsCurrentDir))

	flags := d.FlagArgs()
	require.Len(t, flags, 1)
	assert.Equal(t, "i", flags[0].Short)
	assert.Equal(t, "ignore-case", flags[0].Long)

	params := d.ParamArgs()
	require.Len(t, params, 2)
	assert.Equal(t, Str, params[0].Value.Type)
	assert.Equal(t, SizeOne, params[0].Value.Size.Kind)
	assert.Equal(t, InputFile, params[1].Value.Type)
}

func TestParseLine_MultiWordCommandName(t *testing.T) {
	line := `git status: FLAGS:[(short:s,long:short)] OPTPARAMS:[] PARAMS:[]`
	d, err := ParseLine(line, 1)
	require.NoError(t, err)
	assert.Equal(t, "git status", d.CommandName)
}

func TestParseLine_SplittableFileList(t *testing.T) {
	line := `cat: PARAMS:[(type:input_file,size:list(list_separator:( )),splittable)]`
	d, err := ParseLine(line, 1)
	require.NoError(t, err)
	require.Len(t, d.Args, 1)
	assert.Equal(t, SizeList, d.Args[0].Value.Size.Kind)
	assert.Equal(t, ' ', d.Args[0].Value.Size.Sep)
	assert.True(t, d.Args[0].Value.Splittable)
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"flag with type", `x: FLAGS:[(short:a,type:str,size:1)]`},
		{"optparam no name", `x: OPTPARAMS:[(type:str,size:1)]`},
		{"param missing size", `x: PARAMS:[(type:str)]`},
		{"duplicate short", `x: FLAGS:[(short:a),(short:a)]`},
		{"two splittable", `x: PARAMS:[(type:str,size:1,splittable),(type:str,size:list(list_separator:(,)),splittable)]`},
		{"splittable with size 1", `x: PARAMS:[(type:input_file,size:1,splittable)]`},
		{"splittable with size exact 1", `x: PARAMS:[(type:input_file,size:specific_size(1),splittable)]`},
		{"unknown command flag", `x[bogus_flag]: PARAMS:[]`},
		{"bad block name", `x: WHATEVER:[]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseLine(tc.line, 1)
			require.Error(t, err)
			var badErr *BadAnnotationError
			require.ErrorAs(t, err, &badErr)
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	lines := []string{
		`grep[filters_input,splittable_across_input]: FLAGS:[(short:i,long:ignore-case)] PARAMS:[(type:str,size:1),(type:input_file,size:1)]`,
		`cat: PARAMS:[(type:input_file,size:list(list_separator:( )),splittable)]`,
		`cut: OPTPARAMS:[(short:d,long:delimiter,type:str,size:1),(short:f,long:fields,type:str,size:specific_size(2))]`,
	}
	for _, line := range lines {
		d, err := ParseLine(line, 1)
		require.NoError(t, err)

		serialized := Serialize(d)
		d2, err := ParseLine(serialized, 1)
		require.NoError(t, err, "re-parsing serialized form: %s", serialized)

		assert.True(t, Equal(d, d2), "round-trip mismatch for %q -> %q", line, serialized)
	}
}

func TestLoadReader_OverloadSets(t *testing.T) {
	data := `
# comment line, ignored
grep[filters_input]: PARAMS:[(type:str,size:1)]
grep[filters_input]: PARAMS:[(type:str,size:1),(type:input_file,size:1)]

cat: PARAMS:[(type:input_file,size:list(list_separator:( )),splittable)]
`
	table, err := LoadReader(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	grepSet := table.Lookup("grep")
	require.Len(t, grepSet, 2)
	assert.Len(t, grepSet[0].ParamArgs(), 1)
	assert.Len(t, grepSet[1].ParamArgs(), 2)

	assert.Nil(t, table.Lookup("frobnicate"))
}
