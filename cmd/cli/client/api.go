package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/formeye/internal/history"
	"github.com/formeye/internal/models"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *APIClient) doRequest(method, path string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s", apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type RuleList struct {
	Rules []models.Rule `json:"rules"`
	Total int64         `json:"total"`
}

func (c *APIClient) ListRules(formID string) (*RuleList, error) {
	path := "/api/v1/rules"
	if formID != "" {
		path += "?form_id=" + url.QueryEscape(formID)
	}
	var list RuleList
	if err := c.doRequest(http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

type RuleDetail struct {
	Rule          models.Rule            `json:"rule"`
	LatestFailure *models.DeliveryRecord `json:"latest_failure"`
}

func (c *APIClient) GetRule(id uint) (*RuleDetail, error) {
	var detail RuleDetail
	if err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/v1/rules/%d", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *APIClient) SetRuleEnabled(id uint, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	return c.doRequest(http.MethodPut, fmt.Sprintf("/api/v1/rules/%d/%s", id, action), nil, nil)
}

type TestResult struct {
	ConditionMet    bool   `json:"conditionMet"`
	WouldSend       bool   `json:"wouldSend"`
	RenderedMessage string `json:"renderedMessage"`
	Error           string `json:"error"`
}

func (c *APIClient) TestRule(id, submissionID uint) (*TestResult, error) {
	var body interface{}
	if submissionID != 0 {
		body = map[string]uint{"submission_id": submissionID}
	}
	var result TestResult
	if err := c.doRequest(http.MethodPost, fmt.Sprintf("/api/v1/rules/%d/test", id), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type HistoryPage struct {
	Records []models.DeliveryRecord `json:"records"`
	Total   int64                   `json:"total"`
}

func (c *APIClient) History(status string, ruleID uint) (*HistoryPage, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if ruleID != 0 {
		params.Set("rule_id", fmt.Sprintf("%d", ruleID))
	}
	path := "/api/v1/history"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var page HistoryPage
	if err := c.doRequest(http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *APIClient) Stats() (*history.StatsReport, error) {
	var stats history.StatsReport
	if err := c.doRequest(http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
