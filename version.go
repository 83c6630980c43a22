package tangguh

// Version is the current library version, set at release time.
const Version = "0.3.0"

// UserAgent is the default User-Agent header value attached to outgoing
// requests unless the request descriptor provides its own.
const UserAgent = "tangguh/" + Version
