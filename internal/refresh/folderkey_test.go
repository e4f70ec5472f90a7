package refresh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateFolderKeyDeterministic(t *testing.T) {
	a := GenerateFolderKey("Movie B (2020)", map[string]bool{})
	b := GenerateFolderKey("Movie B (2020)", map[string]bool{})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestGenerateFolderKeyDistinctNames(t *testing.T) {
	keys := map[string]bool{}
	a := GenerateFolderKey("Show A S02", keys)
	keys[a] = true
	b := GenerateFolderKey("Show A S03", keys)
	assert.NotEqual(t, a, b)
}

func TestGenerateFolderKeyCollisionSuffix(t *testing.T) {
	keys := map[string]bool{}
	base := GenerateFolderKey("Movie B (2020)", keys)
	keys[base] = true

	second := GenerateFolderKey("Movie B (2020)", keys)
	assert.Equal(t, base+"-1", second)
	keys[second] = true

	third := GenerateFolderKey("Movie B (2020)", keys)
	assert.Equal(t, base+"-2", third)
}
