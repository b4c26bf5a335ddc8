package mesh

// MicService implements spec.md §4.7: which topics require a MIC, which key
// protects them, and constant-time compute/verify against that key.
type MicService struct{}

// NewMicService returns a stateless MicService.
func NewMicService() *MicService { return &MicService{} }

// RequiresMIC reports whether topic carries a trailing MIC on the wire.
// INCLUDE_OPEN and INCLUDE_REQUEST are the only exceptions: both are
// unauthenticated by design (spec.md §4.12, §9).
func (s *MicService) RequiresMIC(topic Topic) bool {
	switch topic {
	case TopicIncludeOpen, TopicIncludeRequest:
		return false
	default:
		return true
	}
}

// micKey resolves the key bytes to MIC a frame under for topics whose key
// is determined entirely by CryptoContext (spec.md §4.7's key-selection
// table): CONFIRM/SUCCESS and regular traffic use the network key.
// INCLUDE_RESPONSE is handled separately — its key is the ECIES session key
// Router threads through from EncryptionService (see Router.RoutePacket/
// Unwrap and DESIGN.md); callers must not reach micKey for that topic.
func (s *MicService) micKey(ctx *CryptoContext, topic Topic) ([]byte, error) {
	if ctx.NetworkKey == nil {
		return nil, NewError("micKey", ErrMissingKey, nil)
	}
	return ctx.NetworkKey[:], nil
}

// Compute returns the 4-byte MIC over header||payload (without any existing
// MIC) for topic, using the key selected by ctx (spec.md §4.4/§4.7).
func (s *MicService) Compute(ctx *CryptoContext, topic Topic, data []byte) ([MICLen]byte, error) {
	var mic [MICLen]byte
	key, err := s.micKey(ctx, topic)
	if err != nil {
		return mic, err
	}
	return ComputeMIC(key, data)
}

// Verify checks a received MIC against header||payload (without the MIC)
// under the key topic/ctx selects, comparing in constant time.
func (s *MicService) Verify(ctx *CryptoContext, topic Topic, data []byte, mic [MICLen]byte) (bool, error) {
	key, err := s.micKey(ctx, topic)
	if err != nil {
		return false, err
	}
	return VerifyMIC(key, data, mic)
}
