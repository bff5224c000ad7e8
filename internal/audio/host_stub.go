//go:build !whisper

package audio

// NewHost returns ErrUnsupported; PortAudio is only linked with -tags whisper.
func NewHost() (Host, error) {
	return nil, ErrUnsupported
}
