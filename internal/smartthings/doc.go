// Package smartthings provides a minimal SmartThings cloud REST client.
//
// The client is HTTP-only with no caching and no retries: every operation is a
// single round trip authorized with a personal access token. It covers the
// handful of endpoints a keypad needs: listing devices and scenes, reading a
// device's switch state, sending device commands and executing scenes.
package smartthings
