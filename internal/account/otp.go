package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCodeTaken means another teacher currently holds the same code.
	ErrCodeTaken = errors.New("otp code in use")
	// ErrCodeInvalid means the code is unknown or expired.
	ErrCodeInvalid = errors.New("otp code invalid")
)

// OTPStore keeps one live reset code per teacher.
type OTPStore interface {
	// Save binds code to teacherID for ttl, replacing the teacher's previous code.
	Save(ctx context.Context, teacherID, code string, ttl time.Duration) error
	// Consume returns the teacher bound to code and removes it.
	Consume(ctx context.Context, code string) (string, error)
}

const otpDigits = 6

// newCode returns a zero-padded random 6 digit code.
func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// RedisOTPs stores codes under pwreset:otp:<code> and the teacher's live code
// under pwreset:user:<id>.
type RedisOTPs struct {
	client *redis.Client
}

func NewRedisOTPs(client *redis.Client) *RedisOTPs {
	return &RedisOTPs{client: client}
}

func codeKey(code string) string { return "pwreset:otp:" + code }
func userKey(id string) string   { return "pwreset:user:" + id }

func (r *RedisOTPs) Save(ctx context.Context, teacherID, code string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, codeKey(code), teacherID, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeTaken
	}
	old, err := r.client.Get(ctx, userKey(teacherID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userKey(teacherID), code, ttl)
		if old != "" && old != code {
			pipe.Del(ctx, codeKey(old))
		}
		return nil
	})
	return err
}

func (r *RedisOTPs) Consume(ctx context.Context, code string) (string, error) {
	id, err := r.client.GetDel(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeInvalid
	}
	if err != nil {
		return "", err
	}
	if err := r.client.Del(ctx, userKey(id)).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// MemoryOTPs is the in-process OTPStore for the memory backend and tests.
type MemoryOTPs struct {
	mu     sync.Mutex
	now    func() time.Time
	codes  map[string]otpEntry
	byUser map[string]string
}

type otpEntry struct {
	teacherID string
	expires   time.Time
}

func NewMemoryOTPs() *MemoryOTPs {
	return &MemoryOTPs{now: time.Now, codes: make(map[string]otpEntry), byUser: make(map[string]string)}
}

func (m *MemoryOTPs) Save(_ context.Context, teacherID, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.codes[code]; ok && now.Before(e.expires) {
		return ErrCodeTaken
	}
	if old, ok := m.byUser[teacherID]; ok {
		delete(m.codes, old)
	}
	m.codes[code] = otpEntry{teacherID: teacherID, expires: now.Add(ttl)}
	m.byUser[teacherID] = code
	return nil
}

func (m *MemoryOTPs) Consume(_ context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.codes[code]
	if !ok {
		return "", ErrCodeInvalid
	}
	delete(m.codes, code)
	if m.byUser[e.teacherID] == code {
		delete(m.byUser, e.teacherID)
	}
	if !m.now().Before(e.expires) {
		return "", ErrCodeInvalid
	}
	return e.teacherID, nil
}
