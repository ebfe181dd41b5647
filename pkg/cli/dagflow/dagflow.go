// Package dagflow 封装对dagflow HTTP API的访问
package dagflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LENAX/dagflow/pkg/api/dto"
)

// Client dagflow HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建Client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// taskPath 拼接TaskInstance资源路径，mapIndex>=0时带map_index查询参数
func taskPath(dagID, runID, taskID string, mapIndex int, suffix string) string {
	path := fmt.Sprintf("/api/v1/dags/%s/runs/%s/tasks/%s%s",
		url.PathEscape(dagID), url.PathEscape(runID), url.PathEscape(taskID), suffix)
	if mapIndex >= 0 {
		path += "?map_index=" + fmt.Sprintf("%d", mapIndex)
	}
	return path
}

// ========== TaskInstance API ==========

// GetTaskInstance 查询单个TaskInstance
func (c *Client) GetTaskInstance(dagID, runID, taskID string, mapIndex int) (*dto.TaskInstanceView, error) {
	var resp dto.APIResponse[dto.TaskInstanceView]
	if err := c.get(taskPath(dagID, runID, taskID, mapIndex, ""), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ListMapped 列出展开Task的所有映射实例
func (c *Client) ListMapped(dagID, runID, taskID string) ([]dto.TaskInstanceView, error) {
	var resp dto.APIResponse[[]dto.TaskInstanceView]
	if err := c.get(taskPath(dagID, runID, taskID, -1, "/mapped"), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return resp.Data, nil
}

// GetDependencies 查询未满足的调度前置条件
func (c *Client) GetDependencies(dagID, runID, taskID string, mapIndex int) ([]dto.DependencyStatusView, error) {
	var resp dto.APIResponse[[]dto.DependencyStatusView]
	if err := c.get(taskPath(dagID, runID, taskID, mapIndex, "/dependencies"), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return resp.Data, nil
}

// ListTries 列出历史尝试记录
func (c *Client) ListTries(dagID, runID, taskID string, mapIndex int) ([]dto.TryView, error) {
	var resp dto.APIResponse[[]dto.TryView]
	if err := c.get(taskPath(dagID, runID, taskID, mapIndex, "/tries"), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return resp.Data, nil
}

// GetTry 查询指定try_number的尝试记录
func (c *Client) GetTry(dagID, runID, taskID string, mapIndex, tryNumber int) (*dto.TryView, error) {
	var resp dto.APIResponse[dto.TryView]
	suffix := fmt.Sprintf("/tries/%d", tryNumber)
	if err := c.get(taskPath(dagID, runID, taskID, mapIndex, suffix), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// SetState 强制设置TaskInstance状态
func (c *Client) SetState(dagID, runID, taskID string, mapIndex int, req dto.SetStateRequest) (*dto.SetStateResponse, error) {
	var resp dto.APIResponse[dto.SetStateResponse]
	if err := c.patch(taskPath(dagID, runID, taskID, mapIndex, "/state"), req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// DeleteTaskInstance 删除TaskInstance
func (c *Client) DeleteTaskInstance(dagID, runID, taskID string, mapIndex int) error {
	var resp dto.APIResponse[any]
	if err := c.delete(taskPath(dagID, runID, taskID, mapIndex, ""), &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== DagRun API ==========

// Clear 清除TaskInstance，req.DryRun为nil时服务端默认只预览
func (c *Client) Clear(dagID string, req dto.ClearRequest) (*dto.ClearResponse, error) {
	var resp dto.APIResponse[dto.ClearResponse]
	if err := c.post("/api/v1/dags/"+url.PathEscape(dagID)+"/clear", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// TriggerRun 手动触发DagRun
func (c *Client) TriggerRun(dagID string, req dto.TriggerRunRequest) (*dto.DagRunView, error) {
	var resp dto.APIResponse[dto.DagRunView]
	if err := c.post("/api/v1/dags/"+url.PathEscape(dagID)+"/runs", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetRun 查询DagRun
func (c *Client) GetRun(dagID, runID string) (*dto.DagRunView, error) {
	var resp dto.APIResponse[dto.DagRunView]
	path := "/api/v1/dags/" + url.PathEscape(dagID) + "/runs/" + url.PathEscape(runID)
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Health API ==========

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reqBody)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) patch(path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	req, err := http.NewRequest(http.MethodPatch, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) delete(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}

	return nil
}
