// Các biến thể FetchedEntity có kiểu rõ ràng cho từng loại thực thể,
// thay cho payload dạng map không kiểm soát. Thực thể chỉ tồn tại trong
// một chu kỳ orchestration trước khi được giao cho reconciler.

package model

import (
	"fmt"
	"time"
)

type Kind string

const (
	KindRepository   Kind = "repository"
	KindContributor  Kind = "contributor"
	KindOrganization Kind = "organization"
	KindEvent        Kind = "event"
)

// ValidationError báo payload từ nguồn thiếu hoặc sai trường bắt buộc.
// Thực thể lỗi bị bỏ qua và ghi log, batch vẫn tiếp tục.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s entity: field %s %s", e.Kind, e.Field, e.Reason)
}

// FetchedEntity là một thực thể vừa fetch từ nguồn, định danh bằng
// external identity bất biến của hệ thống nguồn.
type FetchedEntity interface {
	EntityKind() Kind
	ExternalID() int64
	Validate() error

	// Diff so sánh với bản đã lưu theo danh sách trường so sánh cố định,
	// trả về map cột -> giá trị mới cho các trường thay đổi
	Diff(existing FetchedEntity) map[string]interface{}
}

// RepoEntity là repository fetch từ API tìm kiếm hoặc API chi tiết
type RepoEntity struct {
	ID          int64     `json:"id"`
	User        string    `json:"user"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	StarCount   int       `json:"star_count"`
	ForkCount   int       `json:"fork_count"`
	WatchCount  int       `json:"watch_count"`
	IssueCount  int       `json:"issue_count"`
	IsFork      bool      `json:"is_fork"`
	IsArchived  bool      `json:"is_archived"`
	OwnerID     int64     `json:"owner_id"`
	OwnerLogin  string    `json:"owner_login"`
	OwnerType   string    `json:"owner_type"`
	CreatedAt   time.Time `json:"created_at"`
	PushedAt    time.Time `json:"pushed_at"`
}

func (e *RepoEntity) EntityKind() Kind  { return KindRepository }
func (e *RepoEntity) ExternalID() int64 { return e.ID }

func (e *RepoEntity) Validate() error {
	if e.ID <= 0 {
		return &ValidationError{Kind: KindRepository, Field: "id", Reason: "is missing"}
	}
	if e.Name == "" {
		return &ValidationError{Kind: KindRepository, Field: "name", Reason: "is empty"}
	}
	if e.User == "" {
		return &ValidationError{Kind: KindRepository, Field: "user", Reason: "is empty"}
	}
	return nil
}

func (e *RepoEntity) Diff(existing FetchedEntity) map[string]interface{} {
	old, ok := existing.(*RepoEntity)
	if !ok {
		return nil
	}

	changed := map[string]interface{}{}
	if e.StarCount != old.StarCount {
		changed["star_count"] = e.StarCount
	}
	if e.ForkCount != old.ForkCount {
		changed["fork_count"] = e.ForkCount
	}
	if e.WatchCount != old.WatchCount {
		changed["watch_count"] = e.WatchCount
	}
	if e.IssueCount != old.IssueCount {
		changed["issue_count"] = e.IssueCount
	}
	if e.Description != old.Description {
		changed["description"] = e.Description
	}
	if e.Language != old.Language {
		changed["language"] = e.Language
	}
	if e.IsArchived != old.IsArchived {
		changed["is_archived"] = e.IsArchived
	}
	return changed
}

// ContributorEntity là user hoặc contributor fetch từ API.
// Hồ sơ đầy đủ (name, company, ...) chỉ có sau bước enrichment.
type ContributorEntity struct {
	ID            int64  `json:"id"`
	Login         string `json:"login"`
	Type          string `json:"type"`
	Name          string `json:"name"`
	Company       string `json:"company"`
	Location      string `json:"location"`
	Email         string `json:"email"`
	Contributions int    `json:"contributions"`
	PublicRepos   int    `json:"public_repos"`
	Followers     int    `json:"followers"`
	Following     int    `json:"following"`
}

func (e *ContributorEntity) EntityKind() Kind  { return KindContributor }
func (e *ContributorEntity) ExternalID() int64 { return e.ID }

func (e *ContributorEntity) Validate() error {
	if e.ID <= 0 {
		return &ValidationError{Kind: KindContributor, Field: "id", Reason: "is missing"}
	}
	if e.Login == "" {
		return &ValidationError{Kind: KindContributor, Field: "login", Reason: "is empty"}
	}
	return nil
}

func (e *ContributorEntity) Diff(existing FetchedEntity) map[string]interface{} {
	old, ok := existing.(*ContributorEntity)
	if !ok {
		return nil
	}

	changed := map[string]interface{}{}
	if e.Contributions != old.Contributions {
		changed["contributions"] = e.Contributions
	}
	if e.PublicRepos != old.PublicRepos {
		changed["public_repos"] = e.PublicRepos
	}
	if e.Followers != old.Followers {
		changed["followers"] = e.Followers
	}
	if e.Following != old.Following {
		changed["following"] = e.Following
	}
	if e.Name != old.Name && e.Name != "" {
		changed["name"] = e.Name
	}
	if e.Company != old.Company && e.Company != "" {
		changed["company"] = e.Company
	}
	if e.Location != old.Location && e.Location != "" {
		changed["location"] = e.Location
	}
	return changed
}

// OrgEntity là organization fetch từ API
type OrgEntity struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Email       string `json:"email"`
	IsVerified  bool   `json:"is_verified"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

func (e *OrgEntity) EntityKind() Kind  { return KindOrganization }
func (e *OrgEntity) ExternalID() int64 { return e.ID }

func (e *OrgEntity) Validate() error {
	if e.ID <= 0 {
		return &ValidationError{Kind: KindOrganization, Field: "id", Reason: "is missing"}
	}
	if e.Login == "" {
		return &ValidationError{Kind: KindOrganization, Field: "login", Reason: "is empty"}
	}
	return nil
}

func (e *OrgEntity) Diff(existing FetchedEntity) map[string]interface{} {
	old, ok := existing.(*OrgEntity)
	if !ok {
		return nil
	}

	changed := map[string]interface{}{}
	if e.Description != old.Description {
		changed["description"] = e.Description
	}
	if e.PublicRepos != old.PublicRepos {
		changed["public_repos"] = e.PublicRepos
	}
	if e.Followers != old.Followers {
		changed["followers"] = e.Followers
	}
	if e.IsVerified != old.IsVerified {
		changed["is_verified"] = e.IsVerified
	}
	return changed
}

// EventEntity là một event từ analytics engine (bảng event theo ngày)
type EventEntity struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	RepoID     int64     `json:"repo_id"`
	RepoName   string    `json:"repo_name"`
	ActorID    int64     `json:"actor_id"`
	ActorLogin string    `json:"actor_login"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *EventEntity) EntityKind() Kind  { return KindEvent }
func (e *EventEntity) ExternalID() int64 { return e.ID }

func (e *EventEntity) Validate() error {
	if e.ID <= 0 {
		return &ValidationError{Kind: KindEvent, Field: "id", Reason: "is missing"}
	}
	if e.Type == "" {
		return &ValidationError{Kind: KindEvent, Field: "type", Reason: "is empty"}
	}
	if e.RepoID <= 0 {
		return &ValidationError{Kind: KindEvent, Field: "repo_id", Reason: "is missing"}
	}
	return nil
}

// Event là bất biến, chỉ so sánh được với chính nó nên không bao giờ update
func (e *EventEntity) Diff(existing FetchedEntity) map[string]interface{} {
	return map[string]interface{}{}
}
