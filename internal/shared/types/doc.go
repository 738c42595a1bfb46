// Package types provides shared data structures for the glasses cloud.
//
// This package defines core types used across all backend components,
// ensuring type safety and consistent wire formats.
//
// Stream Types:
//   - StreamType: Data stream tag (button_press, audio_chunk, ...)
//   - Selector: Subscription selector, plain or language-parameterized
//   - LanguageInfo: Parsed locale parameters of a language selector
//
// Display Types:
//   - Layout: Renderable layout payload (text_wall, reference_card, ...)
//   - DisplayRequest: App request to draw on the glasses
//   - DisplayEvent: Frame sent down to the glasses
//
// Message Types:
//   - GlassesEnvelope, TpaEnvelope: Inbound message headers
//   - DataStream: Stream payload relayed to a subscribed app
//   - PhotoCommand, PhotoResponse, PhotoError: Photo round-trip
//
// Example Usage:
//
//	sel, err := types.ParseSelector("transcription:en-US")
//	if err != nil {
//	    return err
//	}
//	if sel.Matches(types.Selector(types.StreamTranscription)) {
//	    // deliver
//	}
package types
