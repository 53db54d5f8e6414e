package bundler

import (
	"fmt"
	"strconv"
)

// Banner is the license comment placed at the top of the entry chunk.
func Banner(name, license string, year int) string {
	if license == "" {
		license = "MIT"
	}
	return fmt.Sprintf("/**\n * %s Copyright %d\n * Licensed under %s\n */", name, year, license)
}

// umdHeader opens a wrapper exposing the CommonJS bundle through AMD,
// CommonJS or a browser global named library. Bare requires resolve against
// the host's module system, or the global object otherwise.
func umdHeader(library string) string {
	lib := strconv.Quote(library)
	return `(function (root, factory) {
  if (typeof exports === "object" && typeof module === "object") {
    module.exports = factory(require);
  } else if (typeof define === "function" && define.amd) {
    define(["require"], factory);
  } else if (typeof exports === "object") {
    exports[` + lib + `] = factory(require);
  } else {
    root[` + lib + `] = factory(function (id) { return root[id]; });
  }
})(typeof self !== "undefined" ? self : this, function (require) {
var module = { exports: {} }, exports = module.exports;`
}

const umdFooter = `return module.exports;
});`
