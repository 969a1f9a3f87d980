package docai

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ToJSON renders a value as JSON, using protojson for proto messages so
// Document AI responses serialize with their canonical field names.
func ToJSON(data interface{}) (string, error) {
	switch v := data.(type) {
	case proto.Message:
		jsonData, err := protojson.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(jsonData), nil
	default:
		jsonData, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonData), nil
	}
}

// PageImage pulls the rendered page image out of a Document AI page, for
// reuse in PDF assembly.
func PageImage(page *documentaipb.Document_Page) ([]byte, error) {
	if page == nil {
		return nil, fmt.Errorf("no page provided")
	}
	image := page.GetImage()
	if image == nil {
		return nil, fmt.Errorf("page carries no image")
	}
	content := image.GetContent()
	if len(content) == 0 {
		return nil, fmt.Errorf("page image is empty")
	}
	return content, nil
}
