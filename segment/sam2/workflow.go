package sam2

import (
	"encoding/json"
	"fmt"

	"github.com/chaos-io/sam2cut/segment"
)

// workflowNode ComfyUI API 格式的一个节点
type workflowNode struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
}

// buildWorkflow 从内嵌模板构造本次分割的 workflow：
// 替换输入图片名、模型权重和提示点坐标
func buildWorkflow(imageName, model string, points []segment.Point) (map[string]*workflowNode, error) {
	wf := map[string]*workflowNode{}
	if err := json.Unmarshal(workflowTemplate, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow template: %w", err)
	}

	load, err := findNode(wf, "LoadImage")
	if err != nil {
		return nil, err
	}
	load.Inputs["image"] = imageName

	if model != "" {
		loader, err := findNode(wf, "DownloadAndLoadSAM2Model")
		if err != nil {
			return nil, err
		}
		loader.Inputs["model"] = model
	}

	seg, err := findNode(wf, "Sam2Segmentation")
	if err != nil {
		return nil, err
	}

	positive, negative := splitByLabel(points)
	coords, err := marshalCoordinates(positive)
	if err != nil {
		return nil, err
	}
	seg.Inputs["coordinates_positive"] = coords

	if len(negative) > 0 {
		coords, err := marshalCoordinates(negative)
		if err != nil {
			return nil, err
		}
		seg.Inputs["coordinates_negative"] = coords
	}

	return wf, nil
}

func findNode(wf map[string]*workflowNode, classType string) (*workflowNode, error) {
	for _, node := range wf {
		if node.ClassType == classType {
			return node, nil
		}
	}
	return nil, fmt.Errorf("workflow template missing %s node", classType)
}

// splitByLabel 前景点做 positive 提示，背景点做 negative 提示
func splitByLabel(points []segment.Point) (positive, negative []segment.Point) {
	for _, p := range points {
		if p.Label == segment.LabelBackground {
			negative = append(negative, p)
		} else {
			positive = append(positive, p)
		}
	}
	return positive, negative
}

// marshalCoordinates Sam2Segmentation 节点要的坐标是 JSON 字符串
func marshalCoordinates(points []segment.Point) (string, error) {
	type coordinate struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	coords := make([]coordinate, len(points))
	for i, p := range points {
		coords[i] = coordinate{X: p.X, Y: p.Y}
	}

	data, err := json.Marshal(coords)
	if err != nil {
		return "", fmt.Errorf("marshal coordinates: %w", err)
	}
	return string(data), nil
}
