/*
Package randx generates identifiers: UUIDs for persisted chat messages and
short Base62 tokens for transport connections.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// ConnectionIDPrefix marks identifiers assigned by the websocket transport.
	ConnectionIDPrefix = "conn_"

	// ConnectionIDRawLength is the length of the Base62 part of a connection id.
	ConnectionIDRawLength = 12
)

// base62 returns n cryptographically random Base62 characters.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// ConnectionID generates a transport connection identifier such as "conn_4fZk2P9qXa1B".
func ConnectionID() (string, error) {
	raw, err := base62(ConnectionIDRawLength)
	if err != nil {
		return "", err
	}
	return ConnectionIDPrefix + raw, nil
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a message.
func MessageID() string {
	return uuid.New().String()
}
