// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nuget

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	DefaultTokenSubject = "netupgrader"
	DefaultTokenTTL     = 5 * time.Minute
)

// FeedClaims are the claims carried by a feed credential.
type FeedClaims struct {
	Feed string `json:"feed"`
	jwt.RegisteredClaims
}

// Issuer mints short-lived HS256 bearer tokens scoped to one feed. It stands
// in for a real identity provider: every token is signed with a fresh secret
// that is discarded after signing, so nothing can verify it later.
type Issuer struct {
	Subject string
	TTL     time.Duration

	now  func() time.Time
	rand io.Reader
}

func NewIssuer(subject string, ttl time.Duration) *Issuer {
	if subject == "" {
		subject = DefaultTokenSubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{Subject: subject, TTL: ttl, now: time.Now, rand: rand.Reader}
}

// Issue returns a signed token for feedURL. A zero Issuer uses the default
// subject and TTL.
func (i *Issuer) Issue(feedURL string) (string, error) {
	secret, err := i.secret(feedURL)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if i.now != nil {
		now = i.now()
	}
	subject, ttl := i.Subject, i.TTL
	if subject == "" {
		subject = DefaultTokenSubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := FeedClaims{
		Feed: feedURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", errors.Wrapf(err, "sign token for %s", feedURL)
	}
	return token, nil
}

// secret derives sha256(feed + salt) with 8 random salt bytes.
func (i *Issuer) secret(feedURL string) ([]byte, error) {
	salt := make([]byte, 8)
	src := i.rand
	if src == nil {
		src = rand.Reader
	}
	if _, err := io.ReadFull(src, salt); err != nil {
		return nil, errors.Wrap(err, "generate token salt")
	}
	sum := sha256.Sum256([]byte(feedURL + hex.EncodeToString(salt)))
	return []byte(hex.EncodeToString(sum[:])), nil
}
