// Command hashkey reads an API key from stdin and prints the argon2id hash
// to put in AUTH.API_KEY_HASH.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"license-authority/pkg/security"
)

func main() {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(os.Stderr, "hashkey: no key on stdin")
		os.Exit(1)
	}

	key := strings.TrimSpace(line)
	if key == "" {
		fmt.Fprintln(os.Stderr, "hashkey: empty key")
		os.Exit(1)
	}

	hash, err := security.HashSecret(key, security.DefaultParams)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashkey:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
