package wire

// ObfuscateCredentials applies the protocol's credential obfuscation: each
// byte replaced by its complement. The transform is its own inverse, so
// the same function decodes UserLogin and UserPassword payloads. This is
// not encryption; real verification happens against bcrypt hashes.
func ObfuscateCredentials(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = 255 - b
	}
	return out
}
