// Package cos provides common low-level types and utilities shared by the
// master's components.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync/atomic"
	"unsafe"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const (
	// Alphabet for generating UUIDs similar to the shortid.DEFAULT_ABC
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	letterRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

const (
	LenShortID    = 9 // UUID length, as per https://github.com/teris-io/shortid#id-length
	lenDaemonID   = 8 // min length, via cryptographic rand
	lenK8sNodeID  = 13

	tooLongID = 32
)

const (
	mayOnlyContain = "may only contain letters, numbers, dashes (-), underscores (_)"
	OnlyNice       = "must be less than 32 characters and " + mayOnlyContain // NOTE tooLongID
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

//
// UUID - short, globally unique IDs suitable for ActorId.uid values.
//

func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

// "best-effort ID" - independently and locally generate a globally unique ID
// from a numeric seed (e.g. a monotonic counter), with no shortid state.
func GenBEID(val uint64, l int) string {
	b := make([]byte, l)
	const base = uint64(len(letterRunes))
	for i := range l {
		b[i] = letterRunes[val%base]
		val /= base
	}
	return string(b)
}

func IsValidUUID(uuid string) bool {
	return len(uuid) >= LenShortID && IsAlphaNice(uuid)
}

//
// Daemon (NodeId) generation/validation
//

func GenDaemonID() string { return CryptoRandS(lenDaemonID) }

func ValidateDaemonID(id string) error {
	if len(id) < lenDaemonID {
		return fmt.Errorf("node ID %q is too short", id)
	}
	if !IsAlphaNice(id) {
		return fmt.Errorf("node ID %q is invalid: must start with a letter, "+OnlyNice, id)
	}
	return nil
}

// HashNodeID derives a short, stable NodeId from an external cluster-assigned
// name (e.g. a Kubernetes Node name), so the same underlying host always maps
// to the same NodeId across master restarts.
func HashNodeID(nodeName string) (id string) {
	digest := xxhash.Checksum64S([]byte(nodeName), 0)
	id = strconv.FormatUint(digest, 36)
	if id[0] >= '0' && id[0] <= '9' {
		id = id[1:]
	}
	if l := lenK8sNodeID - len(id); l > 0 {
		return GenBEID(digest, l) + id
	}
	return id
}

//
// utility functions
//

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// letters and numbers w/ '-' and '_' permitted with limitations (see OnlyNice const)
func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := range l {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

// 3-letter tie breaker (fast) - used by elect's conflict resolver as the
// stable secondary ordering when two candidates report the same start time.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[(^tie)&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func CryptoRandS(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failing is unrecoverable
	}
	out := make([]byte, n)
	for i, v := range b {
		out[i] = letterRunes[int(v)%len(letterRunes)]
	}
	if !isAlpha(out[0]) {
		out[0] = letterRunes[int(out[0]-'0')%26]
	}
	return unsafeS(out)
}

func unsafeS(b []byte) string { return *(*string)(unsafe.Pointer(&b)) }
