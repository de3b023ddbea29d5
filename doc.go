// Package rbafs provides a virtual filesystem that resolves logical paths
// across loose directories and RBA archives.
//
// A [FileSystem] holds an ordered set of mount points. Each mount point is
// either a directory, indexed recursively when mounted, or an archive, whose
// directory is decoded when mounted and whose entries are decompressed on
// first read. Lookups search mount points from the highest order to the
// lowest, so patch archives shadow base archives and any archive shadows
// loose files:
//
//	fsys := rbafs.New(rbafs.WithLogger(logger))
//	if err := fsys.Mount("assets"); err != nil {
//	    return err
//	}
//	if _, err := fsys.AddArchiveLocation("packs"); err != nil {
//	    return err
//	}
//	f, err := fsys.GetFile("Shaders/Basic.glsl")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
// Logical paths are canonicalized by [NormalizePath] at every boundary:
// separators become forward slashes and names are lower-cased, so
// "Shaders\Basic.GLSL" and "shaders/basic.glsl" name the same file.
//
// FileSystem implements fs.FS, fs.StatFS and fs.ReadFileFS for regular files.
//
// Archives are built and unpacked with the [archive] subpackage.
package rbafs
