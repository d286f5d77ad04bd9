package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocString(t *testing.T) {
	doc := DocString()

	for _, field := range []string{"FF FF", "id", "length", "instruction", "params (length - 2)", "checksum"} {
		assert.Contains(t, doc, field)
	}

	assert.Contains(t, doc, "0x83  SYNC_WRITE")
	assert.Contains(t, doc, "id 254 (0xFE) is broadcast")
}
