// Package secrets resolves secret material for sitegate from exactly one of
// three sources: an inline value, a named environment variable, or a file.
//
// An environment source also honours the conventional "<NAME>_FILE"
// indirection so container secret mounts work without a literal file path in
// configuration:
//
//	plaintext, err := secrets.Resolve("API key k1 secret v2", secrets.Source{
//	    Env: secrets.Ptr("SITEGATE_K1_SECRET"),
//	})
//	if err != nil {
//	    return err
//	}
//	digest := sha256.Sum256(plaintext)
//	secrets.Wipe(plaintext)
//
// Nothing is cached. Callers own the returned buffer and are expected to
// hash it and call Wipe immediately.
//
// Wiping is best effort. The Go runtime may have copied the bytes (string
// conversions, os.Getenv results, file read buffers, garbage collector
// moves) and those copies cannot be scrubbed from here.
package secrets
