package comic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contenthub/internal/model"
)

func TestValidateOrder(t *testing.T) {
	current := []int64{10, 11, 12}

	assert.NoError(t, ValidateOrder(current, []int64{12, 10, 11}))
	assert.NoError(t, ValidateOrder(nil, nil))

	tests := map[string][]int64{
		"missing page":  {10, 11},
		"extra page":    {10, 11, 12, 13},
		"foreign page":  {10, 11, 99},
		"duplicated id": {10, 10, 11},
	}
	for name, order := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateOrder(current, order), ErrInvalidOrder)
		})
	}
}

func TestCheckAccess(t *testing.T) {
	published := &model.Comic{Status: model.StatusPublished}
	draft := &model.Comic{Status: model.StatusDraft}
	open := &model.Episode{Status: model.StatusPublished}
	locked := &model.Episode{Status: model.StatusPublished, IsLocked: true}
	unpublished := &model.Episode{Status: model.StatusDraft}

	assert.NoError(t, CheckAccess(published, open, Reader{}))
	assert.ErrorIs(t, CheckAccess(published, locked, Reader{UserID: 1}), ErrVIPRequired)
	assert.NoError(t, CheckAccess(published, locked, Reader{UserID: 1, IsVIP: true}))
	assert.NoError(t, CheckAccess(published, locked, Reader{UserID: 1, CanWrite: true}))

	assert.ErrorIs(t, CheckAccess(draft, open, Reader{UserID: 1, IsVIP: true}), ErrNotFound)
	assert.ErrorIs(t, CheckAccess(published, unpublished, Reader{}), ErrNotFound)
	assert.NoError(t, CheckAccess(draft, unpublished, Reader{CanWrite: true}))
}

func TestComicInputNormalize(t *testing.T) {
	in := ComicInput{Title: "  One Piece ", Author: " Oda "}
	require.NoError(t, in.Normalize())
	assert.Equal(t, "One Piece", in.Title)
	assert.Equal(t, "Oda", in.Author)

	empty := ComicInput{Title: "   "}
	assert.ErrorIs(t, empty.Normalize(), ErrTitleRequired)
}

func TestPanelInputValidate(t *testing.T) {
	assert.NoError(t, PanelInput{X: 0, Y: 10, Width: 100, Height: 50}.validate())
	assert.ErrorIs(t, PanelInput{X: -1}.validate(), ErrInvalidPanel)
}
