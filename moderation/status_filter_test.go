package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFilter_Replaces_Banned_Word(t *testing.T) {
	req := require.New(t)
	filter, err := NewStatusFilter([]string{"damn"}, '*')
	req.NoError(err)

	req.Equal("well **** it", filter.Sanitize("well damn it"))
}

func TestStatusFilter_Is_Case_Insensitive(t *testing.T) {
	req := require.New(t)
	filter, err := NewStatusFilter([]string{"damn"}, '#')
	req.NoError(err)

	req.Equal("#### right", filter.Sanitize("DaMn right"))
}

func TestStatusFilter_Multiple_Words(t *testing.T) {
	req := require.New(t)
	filter, err := NewStatusFilter([]string{"foo", "bar"}, '*')
	req.NoError(err)

	req.Equal("*** and *** again ***", filter.Sanitize("foo and bar again FOO"))
}

func TestStatusFilter_Empty_List_Is_Passthrough(t *testing.T) {
	req := require.New(t)
	filter, err := NewStatusFilter(nil, '*')
	req.NoError(err)

	req.Equal("anything goes", filter.Sanitize("anything goes"))
}

func TestStatusFilter_Clean_Text_Untouched(t *testing.T) {
	req := require.New(t)
	filter, err := NewStatusFilter([]string{"damn"}, '*')
	req.NoError(err)

	req.Equal("perfectly fine status", filter.Sanitize("perfectly fine status"))
	req.Equal("", filter.Sanitize(""))
}
