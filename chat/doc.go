// Package chat records live Twitch chat into the chat_messages table so a
// stream's chat survives as an analyzable transcript before the VOD replay
// is even published.
//
// StartTwitchChatRecorder joins the channel over IRC and writes each message
// with its absolute time and its offset from the stream start. It needs
// TWITCH_BOT_USERNAME and a chat:read token in TWITCH_OAUTH_TOKEN.
//
// StartAutoChatRecorder wraps the recorder in a live-status poller: when the
// channel goes live it records under a placeholder id ("live-<unix>"), and
// once the real VOD appears on Helix it moves the rows over and realigns the
// offsets by the difference in start time.
package chat
