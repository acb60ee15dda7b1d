// Package device binds a transport backend to a device family.
//
// Client performs one command exchange at a time and decodes typed
// responses. Finder enumerates transport candidates for a family and returns
// a Client only when exactly one live candidate exists.
//
// Basic usage:
//
//	finder := device.NewFinder(protocol.Display)
//	client, err := finder.Find(ctx)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	v, err := client.MicroVersion(ctx)
package device
