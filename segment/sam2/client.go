// Package sam2 通过 ComfyUI 的 REST 接口调用 SAM 2 做点选分割：
// 上传图片 -> 提交 workflow -> 轮询 history -> 取回掩码图
package sam2

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/chaos-io/sam2cut/imaging"
	"github.com/chaos-io/sam2cut/segment"
	"github.com/chaos-io/sam2cut/util"
	nhttp "github.com/chaos-io/sam2cut/util/http"
)

const (
	uploadPath  = "/api/upload/image"
	promptPath  = "/api/prompt"
	historyPath = "/api/history/"
	viewPath    = "/api/view"

	defaultPollInterval = 500 * time.Millisecond
)

//go:embed workflow.json
var workflowTemplate []byte

// Config ComfyUI 客户端配置
type Config struct {
	BaseURL string
	// Model SAM 2 权重文件名，留空用模板里的默认值
	Model string
	// PollInterval 轮询 history 的间隔
	PollInterval time.Duration
	// MaxSide 上传前的最长边限制，0 表示原图直传
	MaxSide int
}

type Client struct {
	cfg      Config
	cli      nhttp.IClient
	clientID string
}

func New(cfg Config) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:      cfg,
		cli:      nhttp.NewHTTPClient(),
		clientID: ksuid.New().String(),
	}
}

// Segment 执行一次点选分割，返回模型分辨率下的前景掩码。
// 整个过程不做重试，任何一步失败原样向上抛
func (c *Client) Segment(ctx context.Context, img image.Image, points []segment.Point) (*segment.Mask, error) {
	defer util.Trace("sam2 segment")()

	if len(points) == 0 {
		return nil, fmt.Errorf("no prompt points")
	}

	scaled := imaging.FitWithinMax(img, c.cfg.MaxSide)
	data, err := imaging.EncodePNG(scaled)
	if err != nil {
		return nil, err
	}

	// 点位是原图坐标，图被缩放后要同步换算
	points = rescalePoints(points, img.Bounds(), scaled.Bounds())

	name, err := c.uploadImage(ctx, data)
	if err != nil {
		return nil, err
	}

	promptID, err := c.prompt(ctx, name, points)
	if err != nil {
		return nil, err
	}

	output, err := c.waitForOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	raw, err := c.view(ctx, output)
	if err != nil {
		return nil, err
	}

	maskImg, _, err := imaging.DecodeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode mask: %w", err)
	}

	return segment.NewMask(imaging.ToGray(maskImg)), nil
}

type uploadImageResp struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}
*/
func (c *Client) uploadImage(ctx context.Context, data []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", ksuid.New().String()+".png")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}

	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	_ = writer.Close()

	resp := &uploadImageResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.cfg.BaseURL + uploadPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return "", fmt.Errorf("upload image: empty name in response")
	}

	slog.Debug("image uploaded", "name", resp.Name, "subfolder", resp.Subfolder)
	return resp.Name, nil
}

type promptResp struct {
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": <workflow>, "client_id": "..."}'

{"prompt_id": "7e3f...", "number": 3, "node_errors": {}}
*/
func (c *Client) prompt(ctx context.Context, imageName string, points []segment.Point) (string, error) {
	wf, err := buildWorkflow(imageName, c.cfg.Model, points)
	if err != nil {
		return "", err
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.cfg.BaseURL + promptPath,
		Method:     "POST",
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       map[string]interface{}{"prompt": wf, "client_id": c.clientID},
		Response:   resp,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if resp.PromptID == "" {
		return "", fmt.Errorf("queue prompt: empty prompt_id in response")
	}

	slog.Debug("prompt queued", "prompt_id", resp.PromptID, "number", resp.Number)
	return resp.PromptID, nil
}

// waitForOutput 轮询 history 直到 prompt 执行完（成功或失败）。
// 执行中的 prompt 不在 history 里，继续等；超时由调用方的 ctx 控制
func (c *Client) waitForOutput(ctx context.Context, promptID string) (*outputImage, error) {
	for {
		entry, found, err := c.history(ctx, promptID)
		if err != nil {
			return nil, err
		}
		if found {
			if entry.Status.StatusStr == "error" {
				return nil, fmt.Errorf("prompt execution failed: %s", executionError(entry))
			}
			if entry.Status.Completed {
				return firstOutputImage(entry)
			}
		}

		if err := sleepWithContext(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

type historyEntry struct {
	Status struct {
		StatusStr string              `json:"status_str"`
		Completed bool                `json:"completed"`
		Messages  [][]json.RawMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []outputImage `json:"images"`
	} `json:"outputs"`
}

type outputImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
curl "$BASE_URL/api/history/<prompt_id>"
*/
func (c *Client) history(ctx context.Context, promptID string) (*historyEntry, bool, error) {
	resp := map[string]*historyEntry{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.cfg.BaseURL + historyPath + promptID,
		Method:     "GET",
		Response:   &resp,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, false, fmt.Errorf("fetch history: %w", err)
	}

	entry, ok := resp[promptID]
	return entry, ok, nil
}

/*
curl "$BASE_URL/api/view?filename=xxx.png&subfolder=&type=output"
*/
func (c *Client) view(ctx context.Context, img *outputImage) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", img.Filename)
	q.Set("subfolder", img.Subfolder)
	q.Set("type", img.Type)

	var raw []byte
	reqParam := &nhttp.RequestParam{
		RequestURI:  c.cfg.BaseURL + viewPath + "?" + q.Encode(),
		Method:      "GET",
		RawResponse: &raw,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("fetch mask: %w", err)
	}
	return raw, nil
}

// executionError 从 status.messages 里捞出 execution_error 的异常信息
func executionError(entry *historyEntry) string {
	for _, msg := range entry.Status.Messages {
		if len(msg) < 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(msg[0], &kind); err != nil || kind != "execution_error" {
			continue
		}
		var detail struct {
			ExceptionMessage string `json:"exception_message"`
		}
		if err := json.Unmarshal(msg[1], &detail); err == nil && detail.ExceptionMessage != "" {
			return detail.ExceptionMessage
		}
	}
	return entry.Status.StatusStr
}

// firstOutputImage 执行成功但没有任何输出图时按"没有掩码"处理
func firstOutputImage(entry *historyEntry) (*outputImage, error) {
	for _, out := range entry.Outputs {
		for i := range out.Images {
			img := out.Images[i]
			if img.Type == "" || img.Type == "output" {
				return &img, nil
			}
		}
	}
	return nil, segment.ErrNoMask
}

func rescalePoints(points []segment.Point, from, to image.Rectangle) []segment.Point {
	if from.Dx() == to.Dx() && from.Dy() == to.Dy() {
		return points
	}

	sx := float64(to.Dx()) / float64(from.Dx())
	sy := float64(to.Dy()) / float64(from.Dy())

	out := make([]segment.Point, len(points))
	for i, p := range points {
		out[i] = segment.Point{
			X:     min(to.Dx()-1, int(float64(p.X)*sx)),
			Y:     min(to.Dy()-1, int(float64(p.Y)*sy)),
			Label: p.Label,
		}
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ segment.Segmenter = (*Client)(nil)
