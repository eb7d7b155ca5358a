package nodes

import "log"

// MaxTabs is the number of picker tabs.
const MaxTabs = 5

// TabOutput is the image, mask and path of one picker tab.
type TabOutput struct {
	Image    Tensor `json:"image"`
	Mask     Tensor `json:"mask"`
	Filepath string `json:"filepath"`
}

// GetTabOutput picks tab (1-based, clamped to 1..MaxTabs) out of the list
// outputs of a multi-tab picker. Missing entries fall back to placeholders.
func GetTabOutput(images []Tensor, tab int, masks []Tensor, filepaths []string) TabOutput {
	tab = min(max(tab, 1), MaxTabs)
	idx := tab - 1
	log.Printf("[GetTabOutput] tab %d of %d images, %d masks, %d filepaths", tab, len(images), len(masks), len(filepaths))
	return tabAt(images, masks, filepaths, idx)
}

// Expanded holds every tab of a multi-tab picker as separate outputs.
type Expanded struct {
	Images    [MaxTabs]Tensor `json:"images"`
	Masks     [MaxTabs]Tensor `json:"masks"`
	Filepaths [MaxTabs]string `json:"filepaths"`
}

// ExpandAllTabs splits the list outputs into MaxTabs images, masks and
// paths, filling gaps with placeholders.
func ExpandAllTabs(images, masks []Tensor, filepaths []string) Expanded {
	var out Expanded
	for i := 0; i < MaxTabs; i++ {
		tab := tabAt(images, masks, filepaths, i)
		out.Images[i] = tab.Image
		out.Masks[i] = tab.Mask
		out.Filepaths[i] = tab.Filepath
	}
	return out
}

func tabAt(images, masks []Tensor, filepaths []string, idx int) TabOutput {
	out := TabOutput{Image: EmptyImage(), Mask: EmptyMask()}
	if idx < len(images) {
		out.Image = images[idx]
	}
	if idx < len(masks) {
		out.Mask = masks[idx]
	}
	if idx < len(filepaths) {
		out.Filepath = filepaths[idx]
	}
	return out
}
