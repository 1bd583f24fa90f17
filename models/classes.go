// Package models - Class label tables for detection networks.
package models

// cocoLabels is the 80-class COCO label set in detector output order.
var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase",
	"frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// COCOLabels returns a copy of the COCO class names so callers cannot
// mutate the shared table.
func COCOLabels() []string {
	return append([]string(nil), cocoLabels...)
}

// LabelIndex builds a name-to-index map for a label table.
func LabelIndex(labels []string) map[string]int {
	index := make(map[string]int, len(labels))
	for i, name := range labels {
		index[name] = i
	}
	return index
}
