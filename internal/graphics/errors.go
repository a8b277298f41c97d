package graphics

import "errors"

// Error taxonomy from spec.md §7. TemplateRejected, AssetNotFound,
// AssetTooLarge, and RegistryFull are surfaced as-is from the sanitize and
// asset packages (compare with errors.Is against those packages' sentinels);
// RendererUnavailable is surfaced from the renderer package;
// OutputTransitionError is the transition package's *transition.Error type.
var (
	ErrNotConfigured     = errors.New("graphics: outputs not configured")
	ErrInvalidPayload    = errors.New("graphics: invalid payload")
	ErrLayerLimit        = errors.New("graphics: layer limit exceeded")
	ErrFormatMismatch    = errors.New("graphics: bundle format mismatch with active output")
	ErrOutputHelperError = errors.New("graphics: output helper error")
	ErrRateLimited       = errors.New("graphics: rate limited")
)
