// Gói tokenpool quản lý nhiều access token của GitHub API.
// Mỗi token được theo dõi quota riêng và pool tự động xoay vòng
// giữa các token để tránh đạt rate limit.

package tokenpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoTokens báo pool được khởi tạo không có token nào
var ErrNoTokens = errors.New("token pool requires at least one token")

// Credential giữ trạng thái quota của một access token
type Credential struct {
	Token          string
	QuotaRemaining int
	QuotaResetAt   time.Time
	UsageCount     int64
}

// Lease là kết quả của một lần Acquire thành công
type Lease struct {
	Index int
	Token string
}

// CredentialStats là snapshot trạng thái một token, token đã được che bớt
type CredentialStats struct {
	Index          int       `json:"index"`
	Token          string    `json:"token"`
	QuotaRemaining int       `json:"quota_remaining"`
	QuotaResetAt   time.Time `json:"quota_reset_at"`
	UsageCount     int64     `json:"usage_count"`
	Status         string    `json:"status"`
}

// Pool xoay vòng qua các credential theo round-robin, bắt đầu từ vị trí
// sau token dùng thành công gần nhất. Mỗi credential có lock riêng nên
// Acquire không bao giờ giữ quá một lock tại một thời điểm.
type Pool struct {
	creds        []Credential
	locks        []sync.Mutex
	nominalQuota int
	resetPeriod  time.Duration
	reserve      int

	// ResetBuffer là khoảng đệm chờ thêm sau thời điểm reset trước khi
	// dùng lại token, tránh dùng ngay khi server chưa kịp reset
	ResetBuffer time.Duration

	idxMu    sync.Mutex
	nextIdx  int
	sleepFn  func(ctx context.Context, d time.Duration) error
}

// NewPool tạo pool từ danh sách token. Danh sách rỗng là lỗi cấu hình.
func NewPool(tokens []string, nominalQuota int, reserve int) (*Pool, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	if nominalQuota <= 0 {
		nominalQuota = 5000
	}
	if reserve < 0 {
		reserve = 0
	}

	resetPeriod := time.Hour
	creds := make([]Credential, len(tokens))
	now := time.Now()
	for i, t := range tokens {
		creds[i] = Credential{
			Token:          t,
			QuotaRemaining: nominalQuota,
			QuotaResetAt:   now.Add(resetPeriod),
		}
	}

	return &Pool{
		creds:        creds,
		locks:        make([]sync.Mutex, len(tokens)),
		nominalQuota: nominalQuota,
		resetPeriod:  resetPeriod,
		reserve:      reserve,
		ResetBuffer:  2 * time.Second,
		sleepFn:      sleepCtx,
	}, nil
}

// Acquire trả về credential còn quota. Chỉ block khi tất cả credential
// đều cạn quota, khi đó sẽ ngủ đến thời điểm reset gần nhất rồi thử lại.
// Quota được trừ trước một cách lạc quan, caller báo lại giá trị thật
// qua Report sau khi nhận response.
func (p *Pool) Acquire(ctx context.Context) (Lease, error) {
	for {
		if lease, ok := p.tryAcquire(); ok {
			return lease, nil
		}

		wait := p.nearestReset()
		if err := p.sleepFn(ctx, wait); err != nil {
			return Lease{}, err
		}
	}
}

func (p *Pool) tryAcquire() (Lease, bool) {
	start := p.startIndex()

	for i := 0; i < len(p.creds); i++ {
		idx := (start + i) % len(p.creds)

		p.locks[idx].Lock()
		cred := &p.creds[idx]

		// Token đã qua thời điểm reset thì khôi phục quota danh định
		if time.Now().After(cred.QuotaResetAt) {
			cred.QuotaRemaining = p.nominalQuota
			cred.QuotaResetAt = time.Now().Add(p.resetPeriod)
		}

		if cred.QuotaRemaining > p.reserve {
			cred.QuotaRemaining--
			cred.UsageCount++
			token := cred.Token
			p.locks[idx].Unlock()

			p.setStartIndex((idx + 1) % len(p.creds))
			return Lease{Index: idx, Token: token}, true
		}
		p.locks[idx].Unlock()
	}

	return Lease{}, false
}

// Report ghi đè ước lượng quota bằng giá trị thật từ response header
func (p *Pool) Report(index int, remaining int, resetAt time.Time) {
	if index < 0 || index >= len(p.creds) {
		return
	}
	p.locks[index].Lock()
	defer p.locks[index].Unlock()
	p.creds[index].QuotaRemaining = remaining
	if !resetAt.IsZero() {
		p.creds[index].QuotaResetAt = resetAt
	}
}

// Size trả về số lượng credential trong pool
func (p *Pool) Size() int {
	return len(p.creds)
}

// Stats trả về snapshot trạng thái tất cả token, phục vụ monitoring
func (p *Pool) Stats() []CredentialStats {
	stats := make([]CredentialStats, 0, len(p.creds))
	for i := range p.creds {
		p.locks[i].Lock()
		cred := p.creds[i]
		p.locks[i].Unlock()

		status := "active"
		if cred.QuotaRemaining <= p.reserve {
			status = "exhausted"
		}
		stats = append(stats, CredentialStats{
			Index:          i,
			Token:          maskToken(cred.Token),
			QuotaRemaining: cred.QuotaRemaining,
			QuotaResetAt:   cred.QuotaResetAt,
			UsageCount:     cred.UsageCount,
			Status:         status,
		})
	}
	return stats
}

// nearestReset tính khoảng chờ đến thời điểm reset gần nhất cộng buffer
func (p *Pool) nearestReset() time.Duration {
	var nearest time.Time
	for i := range p.creds {
		p.locks[i].Lock()
		resetAt := p.creds[i].QuotaResetAt
		p.locks[i].Unlock()
		if nearest.IsZero() || resetAt.Before(nearest) {
			nearest = resetAt
		}
	}

	wait := time.Until(nearest) + p.ResetBuffer
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (p *Pool) startIndex() int {
	p.idxMu.Lock()
	defer p.idxMu.Unlock()
	return p.nextIdx
}

func (p *Pool) setStartIndex(idx int) {
	p.idxMu.Lock()
	defer p.idxMu.Unlock()
	p.nextIdx = idx
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s...%s", token[:4], token[len(token)-4:])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
