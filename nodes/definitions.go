package nodes

import "strconv"

// Input describes one node input socket or widget.
type Input struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
	Min      *int   `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *int   `json:"max,omitempty" yaml:"max,omitempty"`
}

// Output describes one node output socket.
type Output struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Definition is the registration record the editor needs for a node class.
type Definition struct {
	Class       string   `json:"class" yaml:"class"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Category    string   `json:"category" yaml:"category"`
	Description string   `json:"description" yaml:"description"`
	InputIsList bool     `json:"input_is_list,omitempty" yaml:"input_is_list,omitempty"`
	OutputNode  bool     `json:"output_node,omitempty" yaml:"output_node,omitempty"`
	Inputs      []Input  `json:"inputs" yaml:"inputs"`
	Outputs     []Output `json:"outputs" yaml:"outputs"`
}

func intp(v int) *int { return &v }

// Definitions returns every node class, in registration order.
func Definitions() []Definition {
	return []Definition{
		{
			Class:       "ImageFolderPicker",
			DisplayName: "Image Folder Picker 📁",
			Category:    "image",
			Description: "Browse a folder and pick an image from thumbnails. Outputs the selected image and its alpha channel as mask.",
			Inputs: []Input{
				{Name: "folder", Type: "STRING", Required: true, Default: ""},
				{Name: "selected_image", Type: "STRING", Default: ""},
			},
			Outputs: []Output{
				{Name: "image", Type: "IMAGE"},
				{Name: "mask", Type: "MASK"},
				{Name: "image_path", Type: "STRING"},
				{Name: "image_count", Type: "INT"},
			},
		},
		{
			Class:       "PNGPromptExtractor",
			DisplayName: "PNG Prompt Extractor 📝",
			Category:    "image",
			Description: "Extract embedded prompt metadata from PNG files. Connect filepath from ImageFolderPicker. Returns raw JSON, positive prompt, and negative prompt.",
			OutputNode:  true,
			Inputs: []Input{
				{Name: "filepath", Type: "STRING", Required: true, Default: ""},
			},
			Outputs: []Output{
				{Name: "prompt_json", Type: "STRING"},
				{Name: "positive_prompt", Type: "STRING"},
				{Name: "negative_prompt", Type: "STRING"},
			},
		},
		{
			Class:       "GetTabOutput",
			DisplayName: "Get Tab Output 🔢",
			Category:    "image",
			Description: "Extract a specific tab's output from ImageFolderPicker. Select tab number (1-5) to get the corresponding image, mask, and filepath.",
			InputIsList: true,
			Inputs: []Input{
				{Name: "images", Type: "IMAGE", Required: true},
				{Name: "tab_number", Type: "INT", Required: true, Default: 1, Min: intp(1), Max: intp(MaxTabs)},
				{Name: "masks", Type: "MASK"},
				{Name: "filepaths", Type: "STRING"},
			},
			Outputs: []Output{
				{Name: "image", Type: "IMAGE"},
				{Name: "mask", Type: "MASK"},
				{Name: "filepath", Type: "STRING"},
			},
		},
		{
			Class:       "ExpandAllTabs",
			DisplayName: "Expand All Tabs 📋",
			Category:    "image",
			Description: "Expand ImageFolderPicker list outputs into 15 individual outputs (5 images, 5 masks, 5 filepaths). Provides all tabs at once without needing multiple GetTabOutput nodes.",
			InputIsList: true,
			Inputs: []Input{
				{Name: "images", Type: "IMAGE", Required: true},
				{Name: "masks", Type: "MASK"},
				{Name: "filepaths", Type: "STRING"},
			},
			Outputs: expandOutputs(),
		},
	}
}

func expandOutputs() []Output {
	outputs := []Output{}
	for _, kind := range []struct{ name, typ string }{{"image", "IMAGE"}, {"mask", "MASK"}, {"filepath", "STRING"}} {
		for i := 1; i <= MaxTabs; i++ {
			outputs = append(outputs, Output{Name: kind.name + strconv.Itoa(i), Type: kind.typ})
		}
	}
	return outputs
}
