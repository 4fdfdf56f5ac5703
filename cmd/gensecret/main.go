package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const SecretKeyBytesLen = 32

// Access and refresh tokens are signed with independent keys, so both are generated
var secretKeys = []string{"ACCESS_SECRET_KEY", "REFRESH_SECRET_KEY"}

func main() {
	if err := generate(os.Stdout, rand.Reader); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

// Write secrets in .env format
func generate(w io.Writer, random io.Reader) error {
	for _, key := range secretKeys {
		b := make([]byte, SecretKeyBytesLen)
		if _, err := io.ReadFull(random, b); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, hex.EncodeToString(b)); err != nil {
			return err
		}
	}
	return nil
}
