package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	assert.Equal(t, "English", Name("en"))
	assert.Equal(t, "French", Name("FR"))
	assert.Equal(t, "German", Name("de-AT"))
	assert.Equal(t, "xx", Name("xx"))
	assert.Equal(t, "", Name(""))
}

func TestDetect(t *testing.T) {
	d := New("en", "fr", "de")

	code, ok := d.Detect("The committee published its annual report on climate adaptation yesterday.")
	assert.True(t, ok)
	assert.Equal(t, "en", code)

	code, ok = d.Detect("Le comité a publié hier son rapport annuel sur l'adaptation au climat.")
	assert.True(t, ok)
	assert.Equal(t, "fr", code)

	_, ok = d.Detect("")
	assert.False(t, ok)
}
