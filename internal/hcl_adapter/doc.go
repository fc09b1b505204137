// Package hcl_adapter loads codebox configuration written in HCL.
//
// A configuration path is either a single .hcl file or a directory whose
// .hcl files are merged; each top-level block may appear at most once across
// all merged files. Expressions can call env("NAME", "fallback") to read the
// process environment, which includes anything loaded from a .env file at
// startup.
//
//	server {
//	  address = env("CODEBOX_ADDR", ":8000")
//	}
//
//	engine {
//	  kind = "python"
//	  env  = { MPLBACKEND = "Agg" }
//	}
//
//	dispatch {
//	  workers      = 8
//	  http_timeout = "60s"
//	}
package hcl_adapter
