package harvester

import (
	"fmt"
	"time"
)

// GitHub không tồn tại trước 2008, window nào sớm hơn đều cắt về mốc này
var windowFloor = time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)

func nowUTC() time.Time {
	return time.Now().UTC()
}

type timeWindow struct {
	startDate time.Time
	endDate   time.Time
}

// generateTimeWindows chia trục thời gian thành các khoảng created-date
// để mỗi query nằm dưới trần 1000 kết quả của search API. Các khoảng
// gần đây hẹp hơn vì repo mới được tạo dày đặc hơn.
func generateTimeWindows(now time.Time) []timeWindow {
	widthYears := []int{1, 1, 1, 1, 2, 3, 4, 5}

	var windows []timeWindow
	end := now
	for _, width := range widthYears {
		start := time.Date(end.Year()-width, 1, 1, 0, 0, 0, 0, time.UTC)
		if start.Before(windowFloor) {
			start = windowFloor
		}

		windows = append(windows, timeWindow{startDate: start, endDate: end})
		if start.Equal(windowFloor) {
			break
		}
		end = start
	}
	return windows
}

// buildQuery tạo search query cho một window theo ngưỡng sao tối thiểu
func buildQuery(minStars int, window timeWindow) string {
	return fmt.Sprintf("stars:>%d created:%s..%s",
		minStars,
		window.startDate.Format("2006-01-02"),
		window.endDate.Format("2006-01-02"))
}
