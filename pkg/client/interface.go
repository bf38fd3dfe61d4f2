package client

import (
	"context"

	"github.com/menta2k/image-annotator/pkg/types"
)

// VisionClient is a vision-language model backend able to look at an image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	Locate(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error)
}
