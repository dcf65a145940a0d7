// Package fmdata is a client for the FileMaker Data API. A Client is bound to
// one hosted database and owns a Session, which logs in lazily and, when the
// server rejects its token, logs in again once and retries the request once.
//
// Records are fetched with Layout.Get, Layout.Range and Layout.Find and
// created with Layout.Create. Each Record tracks which of its fields were
// edited so that Commit sends only the changed fields and portal rows,
// together with the modification stamp the server checks before applying
// them. Portal rows commit through their root record.
//
// Date, time and timestamp fields hold time.Time values. They are parsed and
// formatted with the HostConfig of the client, which carries the formats
// declared by the server and the location its wall clock runs in.
package fmdata
