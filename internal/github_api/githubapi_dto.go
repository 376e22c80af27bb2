// Gói dto cung cấp các đối tượng truyền dữ liệu cho dự án
// Chuyển đổi phản hồi api github thành entity có kiểu rõ ràng

package githubapi

import (
	"time"

	"github.com/thep200/github-harvester/internal/model"
)

type Owner struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type"`
}

type RepoResponse struct {
	Id              int64     `json:"id"`
	Name            string    `json:"name"`
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	Owner           Owner     `json:"owner"`
	StargazersCount int64     `json:"stargazers_count"`
	ForksCount      int64     `json:"forks_count"`
	WatchersCount   int64     `json:"watchers_count"`
	OpenIssuesCount int64     `json:"open_issues_count"`
	Fork            bool      `json:"fork"`
	Archived        bool      `json:"archived"`
	CreatedAt       time.Time `json:"created_at"`
	PushedAt        time.Time `json:"pushed_at"`
}

// SearchResponse là phản hồi của /search/repositories
type SearchResponse struct {
	TotalCount        int            `json:"total_count"`
	IncompleteResults bool           `json:"incomplete_results"`
	Items             []RepoResponse `json:"items"`
}

type UserResponse struct {
	Id          int64  `json:"id"`
	Login       string `json:"login"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Email       string `json:"email"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
}

type OrgResponse struct {
	Id          int64  `json:"id"`
	Login       string `json:"login"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Email       string `json:"email"`
	IsVerified  bool   `json:"is_verified"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

type ContributorResponse struct {
	Id            int64  `json:"id"`
	Login         string `json:"login"`
	Type          string `json:"type"`
	Contributions int    `json:"contributions"`
}

type CommitResponse struct {
	Sha    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type BranchResponse struct {
	Name string `json:"name"`
}

type IssueResponse struct {
	Id     int64  `json:"id"`
	Number int    `json:"number"`
	State  string `json:"state"`
	Title  string `json:"title"`
}

// StargazerResponse yêu cầu Accept header star+json để có starred_at
type StargazerResponse struct {
	StarredAt time.Time `json:"starred_at"`
	User      Owner     `json:"user"`
}

func (r *RepoResponse) ToEntity() *model.RepoEntity {
	user := r.Owner.Login
	return &model.RepoEntity{
		ID:          r.Id,
		User:        user,
		Name:        r.Name,
		FullName:    r.FullName,
		Description: r.Description,
		Language:    r.Language,
		StarCount:   int(r.StargazersCount),
		ForkCount:   int(r.ForksCount),
		WatchCount:  int(r.WatchersCount),
		IssueCount:  int(r.OpenIssuesCount),
		IsFork:      r.Fork,
		IsArchived:  r.Archived,
		OwnerID:     r.Owner.ID,
		OwnerLogin:  r.Owner.Login,
		OwnerType:   r.Owner.Type,
		CreatedAt:   r.CreatedAt,
		PushedAt:    r.PushedAt,
	}
}

func (u *UserResponse) ToEntity() *model.ContributorEntity {
	return &model.ContributorEntity{
		ID:          u.Id,
		Login:       u.Login,
		Type:        u.Type,
		Name:        u.Name,
		Company:     u.Company,
		Location:    u.Location,
		Email:       u.Email,
		PublicRepos: u.PublicRepos,
		Followers:   u.Followers,
		Following:   u.Following,
	}
}

func (o *OrgResponse) ToEntity() *model.OrgEntity {
	return &model.OrgEntity{
		ID:          o.Id,
		Login:       o.Login,
		Name:        o.Name,
		Description: o.Description,
		Location:    o.Location,
		Email:       o.Email,
		IsVerified:  o.IsVerified,
		PublicRepos: o.PublicRepos,
		Followers:   o.Followers,
	}
}

func (c *ContributorResponse) ToEntity() *model.ContributorEntity {
	return &model.ContributorEntity{
		ID:            c.Id,
		Login:         c.Login,
		Type:          c.Type,
		Contributions: c.Contributions,
	}
}

// RateLimitResponse là phản hồi của /rate_limit
type RateLimitResponse struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
		Search struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"search"`
	} `json:"resources"`
}
