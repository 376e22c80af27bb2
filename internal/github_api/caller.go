// Gói githubapi cung cấp một caller cho GitHub API, để lấy dữ liệu
// repository, contributor và organization. Caller chịu trách nhiệm
// thực hiện yêu cầu API: chọn credential từ token pool, tra cache
// trước khi ra mạng, và retry theo chính sách backoff khi gặp lỗi
// tạm thời hoặc rate limit.

package githubapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/thep200/github-harvester/cfg"
	"github.com/thep200/github-harvester/internal/cache"
	"github.com/thep200/github-harvester/internal/limiter"
	"github.com/thep200/github-harvester/internal/model"
	"github.com/thep200/github-harvester/internal/tokenpool"
	"github.com/thep200/github-harvester/pkg/log"
)

// Trần kết quả của search API: tối đa 1000 kết quả cho một query bất kể
// pagination. Muốn nhiều hơn phải chia nhỏ query theo thời gian.
const searchResultCeiling = 1000

// TokenPool là phần contract của pool mà caller cần
type TokenPool interface {
	Acquire(ctx context.Context) (tokenpool.Lease, error)
	Report(index int, remaining int, resetAt time.Time)
}

type Caller struct {
	Logger log.Logger
	Config *cfg.Config
	Pool   TokenPool
	Cache  *cache.Cache
	Retry  RetryPolicy

	client      *http.Client
	limiter     *limiter.RateLimiter
	sf          singleflight.Group
	baseURL     string
	perPage     int
	minInterval time.Duration
	cacheTTL    time.Duration

	lastMu  sync.Mutex
	lastReq map[int]time.Time

	sleepFn func(ctx context.Context, d time.Duration) error
}

// Page là một trang kết quả cùng con trỏ sang trang kế tiếp.
// Next rỗng nghĩa là không còn trang nào.
type Page struct {
	Entities   []model.FetchedEntity
	TotalCount int
	Next       string
}

// pageEnvelope là giá trị lưu trong cache: body kèm con trỏ trang kế
// lấy từ Link header, vì header không còn khi đọc lại từ cache
type pageEnvelope struct {
	Body []byte `json:"body"`
	Next string `json:"next"`
}

func NewCaller(logger log.Logger, config *cfg.Config, pool TokenPool, c *cache.Cache) (*Caller, error) {
	perPage := config.GithubApi.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	rps := config.GithubApi.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	cacheTTL := time.Duration(config.GithubApi.CacheTtlMin) * time.Minute
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	retry := DefaultRetryPolicy()
	if config.GithubApi.MaxRetries > 0 {
		retry.MaxAttempts = config.GithubApi.MaxRetries
	}
	if config.GithubApi.BackoffBaseMs > 0 {
		retry.BaseDelay = time.Duration(config.GithubApi.BackoffBaseMs) * time.Millisecond
	}

	baseURL := strings.TrimSuffix(config.GithubApi.ApiUrl, "/")
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	return &Caller{
		Logger:      logger,
		Config:      config,
		Pool:        pool,
		Cache:       c,
		Retry:       retry,
		client:      &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter.NewRateLimiter(rps),
		baseURL:     baseURL,
		perPage:     perPage,
		minInterval: time.Duration(config.GithubApi.MinRequestIntervalMs) * time.Millisecond,
		cacheTTL:    cacheTTL,
		lastReq:     make(map[int]time.Time),
		sleepFn:     sleepCtx,
	}, nil
}

// SearchCursor tạo con trỏ trang đầu tiên cho một search query
func (c *Caller) SearchCursor(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("page", "1")
	return fmt.Sprintf("%s/search/repositories?%s", c.baseURL, params.Encode())
}

// FetchPage lấy một trang kết quả search theo con trỏ. Con trỏ là URL
// đầy đủ, trang kế tiếp suy ra từ Link header với rel="next".
func (c *Caller) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	env, err := c.request(ctx, cursor, "", true)
	if err != nil {
		return nil, err
	}

	searchResp := &SearchResponse{}
	if err := json.Unmarshal(env.Body, searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	entities := make([]model.FetchedEntity, 0, len(searchResp.Items))
	for i := range searchResp.Items {
		entities = append(entities, searchResp.Items[i].ToEntity())
	}

	return &Page{
		Entities:   entities,
		TotalCount: searchResp.TotalCount,
		Next:       env.Next,
	}, nil
}

// FetchAll lặp FetchPage đến khi hết trang, đạt limit của caller,
// hoặc chạm trần kết quả của search API. Trần này chỉ log warning
// chứ không phải lỗi vì là giới hạn đã biết của dịch vụ.
func (c *Caller) FetchAll(ctx context.Context, query string, limit int) ([]model.FetchedEntity, error) {
	var all []model.FetchedEntity
	ceilingHit := false
	cursor := c.SearchCursor(query)

	for cursor != "" {
		if limit > 0 && len(all) >= limit {
			break
		}

		page, err := c.FetchPage(ctx, cursor)
		if err != nil {
			return all, err
		}
		if len(page.Entities) == 0 {
			break
		}

		all = append(all, page.Entities...)
		c.Logger.Info(ctx, "Fetched %d repositories for query %q, total so far: %d/%d",
			len(page.Entities), query, len(all), page.TotalCount)

		if len(all) >= searchResultCeiling && page.Next != "" {
			c.Logger.Warn(ctx, "GitHub API only provides access to the first 1,000 search results, query %q needs splitting to fetch more", query)
			ceilingHit = true
			break
		}

		cursor = page.Next
	}

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	if ceilingHit {
		return all, ErrResultCeiling
	}
	return all, nil
}

// GetRepository trả về (nil, nil) khi repository không tồn tại
func (c *Caller) GetRepository(ctx context.Context, owner, name string) (*model.RepoEntity, error) {
	env, err := c.request(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name), "", true)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &RepoResponse{}
	if err := json.Unmarshal(env.Body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode repository response: %w", err)
	}
	return resp.ToEntity(), nil
}

// GetUser trả về (nil, nil) khi user không tồn tại
func (c *Caller) GetUser(ctx context.Context, login string) (*model.ContributorEntity, error) {
	env, err := c.request(ctx, fmt.Sprintf("%s/users/%s", c.baseURL, login), "", true)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &UserResponse{}
	if err := json.Unmarshal(env.Body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return resp.ToEntity(), nil
}

// GetOrganization trả về (nil, nil) khi organization không tồn tại
func (c *Caller) GetOrganization(ctx context.Context, login string) (*model.OrgEntity, error) {
	env, err := c.request(ctx, fmt.Sprintf("%s/orgs/%s", c.baseURL, login), "", true)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	resp := &OrgResponse{}
	if err := json.Unmarshal(env.Body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode organization response: %w", err)
	}
	return resp.ToEntity(), nil
}

func (c *Caller) GetContributors(ctx context.Context, owner, repo string, limit int) ([]*model.ContributorEntity, error) {
	perPage := c.perPage
	if limit > 0 && limit < perPage {
		perPage = limit
	}
	first := fmt.Sprintf("%s/repos/%s/%s/contributors?per_page=%d&anon=0", c.baseURL, owner, repo, perPage)

	var contributors []*model.ContributorEntity
	err := c.listAll(ctx, first, "", func(body []byte) error {
		var items []ContributorResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode contributors response: %w", err)
		}
		for i := range items {
			contributors = append(contributors, items[i].ToEntity())
		}
		return nil
	}, func() bool { return limit > 0 && len(contributors) >= limit })
	if err == ErrNotFound {
		// Repo rỗng trả 404 cho contributors, coi như không có ai
		return []*model.ContributorEntity{}, nil
	}
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(contributors) > limit {
		contributors = contributors[:limit]
	}
	return contributors, nil
}

func (c *Caller) GetCommits(ctx context.Context, owner, repo string, limit int) ([]CommitResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/commits?per_page=%d", c.baseURL, owner, repo, c.perPage)
	var commits []CommitResponse
	err := c.listAll(ctx, first, "", func(body []byte) error {
		var items []CommitResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode commits response: %w", err)
		}
		commits = append(commits, items...)
		return nil
	}, func() bool { return limit > 0 && len(commits) >= limit })
	if err == ErrNotFound {
		return []CommitResponse{}, nil
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

func (c *Caller) GetBranches(ctx context.Context, owner, repo string) ([]BranchResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/branches?per_page=%d", c.baseURL, owner, repo, c.perPage)
	var branches []BranchResponse
	err := c.listAll(ctx, first, "", func(body []byte) error {
		var items []BranchResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode branches response: %w", err)
		}
		branches = append(branches, items...)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return branches, nil
}

func (c *Caller) GetIssues(ctx context.Context, owner, repo, state string, limit int) ([]IssueResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/issues?state=%s&per_page=%d", c.baseURL, owner, repo, state, c.perPage)
	return c.listIssues(ctx, first, limit)
}

func (c *Caller) GetPulls(ctx context.Context, owner, repo, state string, limit int) ([]IssueResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/pulls?state=%s&per_page=%d", c.baseURL, owner, repo, state, c.perPage)
	return c.listIssues(ctx, first, limit)
}

func (c *Caller) listIssues(ctx context.Context, first string, limit int) ([]IssueResponse, error) {
	var issues []IssueResponse
	err := c.listAll(ctx, first, "", func(body []byte) error {
		var items []IssueResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode issues response: %w", err)
		}
		issues = append(issues, items...)
		return nil
	}, func() bool { return limit > 0 && len(issues) >= limit })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

// GetStargazers cần Accept header riêng để response có kèm starred_at
func (c *Caller) GetStargazers(ctx context.Context, owner, repo string, limit int) ([]StargazerResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/stargazers?per_page=%d", c.baseURL, owner, repo, c.perPage)
	var stargazers []StargazerResponse
	err := c.listAll(ctx, first, "application/vnd.github.star+json", func(body []byte) error {
		var items []StargazerResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode stargazers response: %w", err)
		}
		stargazers = append(stargazers, items...)
		return nil
	}, func() bool { return limit > 0 && len(stargazers) >= limit })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(stargazers) > limit {
		stargazers = stargazers[:limit]
	}
	return stargazers, nil
}

func (c *Caller) GetForks(ctx context.Context, owner, repo string, limit int) ([]RepoResponse, error) {
	first := fmt.Sprintf("%s/repos/%s/%s/forks?per_page=%d", c.baseURL, owner, repo, c.perPage)
	var forks []RepoResponse
	err := c.listAll(ctx, first, "", func(body []byte) error {
		var items []RepoResponse
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("failed to decode forks response: %w", err)
		}
		forks = append(forks, items...)
		return nil
	}, func() bool { return limit > 0 && len(forks) >= limit })
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(forks) > limit {
		forks = forks[:limit]
	}
	return forks, nil
}

// RateLimit hỏi trạng thái quota hiện tại, không đi qua cache
func (c *Caller) RateLimit(ctx context.Context) (*RateLimitResponse, error) {
	env, err := c.request(ctx, c.baseURL+"/rate_limit", "", false)
	if err != nil {
		return nil, err
	}

	resp := &RateLimitResponse{}
	if err := json.Unmarshal(env.Body, resp); err != nil {
		return nil, fmt.Errorf("failed to decode rate limit response: %w", err)
	}
	return resp, nil
}

// listAll lặp qua các trang theo Link header, gọi handle cho từng trang.
// done (nếu khác nil) cho phép dừng sớm khi đã lấy đủ.
func (c *Caller) listAll(ctx context.Context, first string, accept string, handle func(body []byte) error, done func() bool) error {
	cursor := first
	for cursor != "" {
		env, err := c.request(ctx, cursor, accept, true)
		if err != nil {
			return err
		}
		if err := handle(env.Body); err != nil {
			return err
		}
		if done != nil && done() {
			return nil
		}
		cursor = env.Next
	}
	return nil
}

// request là pipeline chung cho mọi call: cache -> singleflight ->
// token pool -> throttle -> HTTP -> phân loại lỗi -> retry
func (c *Caller) request(ctx context.Context, rawURL string, accept string, useCache bool) (*pageEnvelope, error) {
	key := "gh:" + rawURL
	if accept != "" {
		key += "|" + accept
	}

	if useCache && c.Cache != nil {
		if raw, ok := c.Cache.Get(key); ok {
			env := &pageEnvelope{}
			if err := json.Unmarshal(raw, env); err == nil {
				return env, nil
			}
			// Entry hỏng thì bỏ đi và fetch lại
			_ = c.Cache.Invalidate(key)
		}
	}

	// Gom các request trùng nhau đang bay thành một
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.doWithRetry(ctx, rawURL, accept, key, useCache)
	})
	if err != nil {
		return nil, err
	}
	return v.(*pageEnvelope), nil
}

func (c *Caller) doWithRetry(ctx context.Context, rawURL, accept, key string, useCache bool) (*pageEnvelope, error) {
	var lastErr error

	for attempt := 1; attempt <= c.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleepFn(ctx, c.Retry.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		env, err := c.doOnce(ctx, rawURL, accept)
		if err == nil {
			if useCache && c.Cache != nil {
				if raw, merr := json.Marshal(env); merr == nil {
					_ = c.Cache.Set(key, raw, c.cacheTTL)
				}
			}
			return env, nil
		}

		// 404 và 401 không retry: một là giá trị vắng mặt bình thường,
		// một là credential hỏng
		if err == ErrNotFound || IsAuthentication(err) {
			return nil, err
		}
		if !IsQuotaExceeded(err) && !IsTransient(err) {
			return nil, err
		}

		lastErr = err
		c.Logger.Warn(ctx, "Request to %s failed (attempt %d/%d): %v", rawURL, attempt, c.Retry.MaxAttempts, err)
	}

	return nil, lastErr
}

func (c *Caller) doOnce(ctx context.Context, rawURL, accept string) (*pageEnvelope, error) {
	lease, err := c.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.throttle(ctx, lease.Index); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "github-harvester")
	if lease.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s", lease.Token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	remaining, resetAt := parseRateHeaders(resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthenticationError{Status: resp.StatusCode}

	case isRateLimited(resp, remaining):
		if resetAt.IsZero() {
			// Không xác định được thời gian reset chính xác thì dùng cấu hình mặc định
			resetAt = time.Now().Add(time.Duration(c.Config.GithubApi.RateLimitResetMin) * time.Minute)
		}
		// Báo pool credential này đã cạn để các acquire tiếp theo tránh nó
		c.Pool.Report(lease.Index, 0, resetAt)
		c.Logger.Warn(ctx, "Rate limit hit on credential %d! Reset at %v", lease.Index, resetAt.Format(time.RFC3339))
		return nil, &QuotaExceededError{ResetAt: resetAt, Status: resp.StatusCode}

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound

	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("server error: %s", resp.Status)}

	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected response status: %s", resp.Status)
	}

	if remaining >= 0 {
		c.Pool.Report(lease.Index, remaining, resetAt)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	return &pageEnvelope{
		Body: body,
		Next: parseNextLink(resp.Header.Get("Link")),
	}, nil
}

// throttle giữ khoảng cách tối thiểu giữa các request trên cùng một
// credential, kể cả khi còn quota, để không chạm ngưỡng abuse detection
func (c *Caller) throttle(ctx context.Context, index int) error {
	for !c.limiter.Allow() {
		if err := c.sleepFn(ctx, 50*time.Millisecond); err != nil {
			return err
		}
	}

	if c.minInterval <= 0 {
		return nil
	}

	// Đặt chỗ slot kế tiếp dưới lock rồi mới ngủ, để hai goroutine dùng
	// chung credential không tranh nhau cùng một slot
	c.lastMu.Lock()
	now := time.Now()
	next := c.lastReq[index].Add(c.minInterval)
	if next.Before(now) {
		next = now
	}
	c.lastReq[index] = next
	c.lastMu.Unlock()

	if wait := time.Until(next); wait > 0 {
		return c.sleepFn(ctx, wait)
	}
	return nil
}

func isRateLimited(resp *http.Response, remaining int) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode == http.StatusForbidden {
		return remaining == 0 || resp.Header.Get("Retry-After") != ""
	}
	return false
}

// parseRateHeaders đọc quota còn lại và thời điểm reset từ response header.
// remaining = -1 khi header vắng mặt.
func parseRateHeaders(h http.Header) (int, time.Time) {
	remaining := -1
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}

	var resetAt time.Time
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			resetAt = time.Unix(ts, 0)
		}
	}
	if resetAt.IsZero() {
		if v := h.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				resetAt = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
	}
	return remaining, resetAt
}

// parseNextLink lấy URL trang kế tiếp từ Link header dạng
// <https://...&page=2>; rel="next", <https://...&page=10>; rel="last"
func parseNextLink(header string) string {
	if header == "" {
		return ""
	}
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		if len(segments) < 2 {
			continue
		}
		urlPart := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, seg := range segments[1:] {
			if strings.TrimSpace(seg) == `rel="next"` {
				return urlPart
			}
		}
	}
	return ""
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
