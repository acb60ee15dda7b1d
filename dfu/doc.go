// Package dfu finds the STM32 system bootloader on USB and drives firmware
// transfers to it.
//
// Locator enumerates USB descriptors with gousb and reports the bootloader
// only when exactly one is attached. DFUUtil implements Driver on top of the
// dfu-util command line tool: every DfuSe element is downloaded to its
// address, read back for verification and the bootloader is then told to
// leave DFU mode.
//
// Example:
//
//	loc := dfu.NewLocator()
//	dev, err := loc.Find(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	img, _ := dfuse.Parse("firmware.dfu")
//	ok, err := dfu.NewDFUUtil(dev).FlashAndVerify(ctx, img, true, true, nil)
package dfu
