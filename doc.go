// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

// Package rfb implements the server-side core of the RFB (Remote
// Framebuffer) protocol defined in RFC 6143, the wire protocol behind VNC.
//
// This package never owns a socket. A host creates a Screen over a
// framebuffer it owns, attaches a Client per connection, and feeds inbound
// bytes to Client.Ingest as they arrive from whatever transport the host
// chose (net.Conn, a WebSocket, an in-process pipe). Outbound bytes are
// delivered through a PushFunc callback the host installs on the Screen.
//
// # Basic Usage
//
//	screen, err := rfb.NewScreen(rfb.ScreenConfig{
//		Framebuffer: fb,
//		Width:       1024,
//		Height:      768,
//		Stride:      1024 * 4,
//		PixelFormat: rfb.PixelFormat{BPP: 32, Depth: 24, TrueColor: true, RedMax: 255, GreenMax: 255, BlueMax: 255, RedShift: 16, GreenShift: 8, BlueShift: 0},
//		DesktopName: "example",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	screen.SetCallbacks(pushFn, pointerFn, keyFn)
//
//	conn, err := listener.Accept()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client := rfb.NewClient(screen, conn)
//	go func() {
//		buf := make([]byte, 4096)
//		for {
//			n, err := conn.Read(buf)
//			if err != nil {
//				client.ClientConnectionGone()
//				return
//			}
//			if err := client.Ingest(context.Background(), buf[:n]); err != nil {
//				return
//			}
//		}
//	}()
//
// # Driving Updates
//
// Whenever the host mutates the framebuffer, it calls MarkRectModified so
// every client's pending region accounting picks up the change; a periodic
// tick (or an event-driven call after each mutation) then calls
// Screen.UpdateClients to assemble and push a FramebufferUpdate to clients
// whose deferral window has elapsed:
//
//	screen.DoCopy(x1, y1, x2, y2, dx, dy) // blits fb and tells clients about it
//	screen.MarkRectModified(x1, y1, x2, y2) // for a plain pixel write instead
//
//	ticker := time.NewTicker(20 * time.Millisecond)
//	for range ticker.C {
//		screen.UpdateClients()
//	}
//
// # Authentication and Extensions
//
// Screen.SetAuth installs an AuthRegistry (None and VNC-Password ship
// built in); Screen.Extensions returns an ExtensionRegistry hosts can
// register additional pseudo-encoding hooks against for protocol
// extensions this core doesn't implement directly (file transfer, text
// chat, and similar RFB sub-protocols keyed by message type).
package rfb
