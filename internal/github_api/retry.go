package githubapi

import (
	"math/rand"
	"time"
)

// RetryPolicy là chính sách retry tường minh truyền vào hàm gửi request,
// thay cho decorator ẩn: số lần thử và backoff nhìn thấy được tại call site
// và test độc lập được.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// Delay tính khoảng chờ trước lần thử thứ attempt (bắt đầu từ 1):
// exponential backoff kèm jitter để các worker không retry đồng loạt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	// Jitter trong khoảng [delay/2, delay)
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
