package config

import "encoding/base64"

// keySalt is XORed over the API key bytes before base-64 encoding. This is
// deliberately not encryption: anyone with file access can recover the key.
// It only keeps the plain text out of casual view of the persisted blob.
const keySalt = "meteor-mcp-gemini"

// ObfuscateKey encodes an API key for persistence. Empty in, empty out.
func ObfuscateKey(key string) string {
	if key == "" {
		return ""
	}
	b := []byte(key)
	for i := range b {
		b[i] ^= keySalt[i%len(keySalt)]
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DeobfuscateKey reverses ObfuscateKey. Malformed input yields an empty key
// rather than an error; the caller re-enters the key through the host UI.
func DeobfuscateKey(enc string) string {
	if enc == "" {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return ""
	}
	for i := range b {
		b[i] ^= keySalt[i%len(keySalt)]
	}
	return string(b)
}
