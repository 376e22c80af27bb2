// Phân loại lỗi cho các request tới GitHub API. Mỗi loại lỗi quyết định
// hành vi retry khác nhau: quota thì chờ reset, lỗi mạng thì backoff,
// 404 là giá trị vắng mặt bình thường, 401 là fatal cho cả run.

package githubapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound báo resource không tồn tại. Không phải lỗi với caller,
// họ tự quyết định việc vắng mặt có bất thường hay không.
var ErrNotFound = errors.New("resource not found")

// ErrResultCeiling báo đã chạm trần 1000 kết quả của search API.
// Đây là giới hạn đã biết, không khắc phục được bằng retry.
var ErrResultCeiling = errors.New("search result ceiling reached")

// QuotaExceededError báo credential đã cạn quota, kèm thời điểm reset
// lấy từ response header. Chỉ nổi lên caller khi đã hết số lần retry.
type QuotaExceededError struct {
	ResetAt time.Time
	Status  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("api quota exceeded (status %d), reset at %s", e.Status, e.ResetAt.Format(time.RFC3339))
}

// AuthenticationError báo credential không hợp lệ. Không retry,
// fatal cho toàn bộ orchestration run.
type AuthenticationError struct {
	Status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (status %d)", e.Status)
}

// TransientError bao các lỗi tạm thời: timeout, connection reset, 5xx.
// Retry với backoff, không cập nhật trạng thái token pool.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
