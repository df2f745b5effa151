// Loads daemon settings from layered sources.
//
// Settings start from built-in defaults. A YAML file is merged over them,
// found at the explicit path, the LAMBDAD_CONFIG environment variable, or
// the platform config file, in that order. LAMBDAD_* environment variables
// are applied last and the result is validated.
//
// Example configuration:
//
//	containerd:
//	  address: /run/containerd/containerd.sock
//	  namespace: lambdad
//	builder:
//	  log_level: INFO
//	  images:
//	    - runtime: python3.8
//	      image: public.ecr.aws/sam/build-python3.8
//	sandbox:
//	  memory_limit_mb: 2048
//	  network: none
//	metrics:
//	  address: 127.0.0.1:9464
package settings
