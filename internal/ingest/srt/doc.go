// Package srt receives MPEG-TS over SRT for live caption extraction, in
// listener mode (Server) for publishers pushing to us and caller mode
// (Caller) for pulling from a remote SRT source.
package srt
