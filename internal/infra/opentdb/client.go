package opentdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quicktrivia/internal/domain"
)

const DefaultBaseURL = "https://opentdb.com"

// Open Trivia DB response codes.
const (
	codeSuccess   = 0
	codeNoResults = 1
)

// Client talks to the Open Trivia DB HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type categoriesResponse struct {
	Categories []domain.Category `json:"trivia_categories"`
}

type questionsResponse struct {
	ResponseCode int                  `json:"response_code"`
	Results      []domain.RawQuestion `json:"results"`
}

// LoadCategories lists the provider's categories.
func (c *Client) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	var resp categoriesResponse
	if err := c.get(ctx, "/api_category.php", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

// FetchQuestions requests settings.QuestionCount multiple-choice questions.
// A category or difficulty left empty means any. When the provider has
// no matching questions the result is empty, not an error.
func (c *Client) FetchQuestions(ctx context.Context, settings domain.QuizSettings) ([]domain.RawQuestion, error) {
	query := url.Values{}
	query.Set("amount", strconv.Itoa(settings.QuestionCount))
	query.Set("type", "multiple")
	if settings.CategoryID > 0 {
		query.Set("category", strconv.Itoa(settings.CategoryID))
	}
	if settings.Difficulty != "" {
		query.Set("difficulty", string(settings.Difficulty))
	}

	var resp questionsResponse
	if err := c.get(ctx, "/api.php", query, &resp); err != nil {
		return nil, err
	}
	switch resp.ResponseCode {
	case codeSuccess:
		return resp.Results, nil
	case codeNoResults:
		return nil, nil
	default:
		return nil, fmt.Errorf("opentdb: response code %d", resp.ResponseCode)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("opentdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opentdb: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("opentdb: %s returned %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("opentdb: decode %s: %w", path, err)
	}
	return nil
}
