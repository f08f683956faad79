package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func TestEnsureUTF8BytesKeepsValidInput(t *testing.T) {
	assert.Equal(t, "", EnsureUTF8Bytes(nil))
	assert.Equal(t, "Version 1.0 版本", EnsureUTF8Bytes([]byte("Version 1.0 版本")))
}

func TestEnsureUTF8BytesDecodesGBK(t *testing.T) {
	gbk, _, err := transform.Bytes(simplifiedchinese.GBK.NewEncoder(), []byte("设备运行正常"))
	require.NoError(t, err)
	assert.Equal(t, "设备运行正常", EnsureUTF8Bytes(gbk))
	assert.Equal(t, "设备运行正常", DecodeBytes(simplifiedchinese.GBK, gbk))
}

func TestEncodingByName(t *testing.T) {
	enc, err := EncodingByName("auto")
	require.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = EncodingByName("GBK")
	require.NoError(t, err)
	assert.Equal(t, simplifiedchinese.GBK, enc)

	_, err = EncodingByName("ebcdic")
	assert.Error(t, err)
}
