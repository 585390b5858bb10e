package constants

// Boolean string values
const (
	BoolTrue  = "true"
	BoolFalse = "false"
	BoolYes   = "yes"
	BoolNo    = "no"
	BoolOne   = "1"
	BoolZero  = "0"
)

// Search defaults
const (
	DefaultResultLimit = 3
	DefaultSearchTopK  = 25
	DefaultListLimit   = 20
)

// Text truncation length
const PreviewLength = 100

// Embedding defaults
const (
	BytesPerFloat32        = 4
	DefaultTextDimensions  = 768
	DefaultImageDimensions = 512
	ThumbnailSide          = 8
	ClipImageSide          = 224
)

// Vector index names
const (
	TextIndexName  = "text"
	ImageIndexName = "image"
)

// File permissions
const (
	ConfigFileMode = 0600 // Secure file permissions for config
	DataDirMode    = 0755
)
